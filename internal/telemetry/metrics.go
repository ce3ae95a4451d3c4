package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Arbiter metrics.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_sessions_started_total",
		Help: "Broadcast sessions started.",
	})
	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_sessions_ended_total",
		Help: "Broadcast sessions ended.",
	})
	TracksLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_tracks_logged_total",
		Help: "Track play events recorded.",
	})
	HeartbeatFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_heartbeat_failovers_total",
		Help: "Automation failovers forced by the heartbeat.",
	})
	AutomationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_automation_transitions_total",
		Help: "Automation flag transitions by resulting state.",
	}, []string{"state"})
	RelayPushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_relay_push_failures_total",
		Help: "Failed HTTP pushes to live event relays.",
	})
)

// HTTP metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_api_requests_total",
		Help: "API requests by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_api_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_api_active_connections",
		Help: "In-flight API requests.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
