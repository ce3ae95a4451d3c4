package onair

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/lease"
	"github.com/friendsincode/muninn_airlog/internal/telemetry"
)

// HeartbeatDriver re-evaluates lease expiry on a fixed cadence and forces
// the automation failover when a DJ has gone silent.
type HeartbeatDriver struct {
	coord    *Coordinator
	leases   lease.Store
	bus      *events.Bus
	interval time.Duration
	logger   zerolog.Logger
}

// NewHeartbeatDriver creates the driver. The cadence is roughly once per
// minute in production.
func NewHeartbeatDriver(coord *Coordinator, interval time.Duration, logger zerolog.Logger) *HeartbeatDriver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HeartbeatDriver{
		coord:    coord,
		leases:   coord.leases,
		bus:      coord.bus,
		interval: interval,
		logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Run ticks until ctx is cancelled.
func (h *HeartbeatDriver) Run(ctx context.Context) {
	h.logger.Info().Dur("interval", h.interval).Msg("heartbeat driver starting")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("heartbeat driver stopping")
			return
		case <-ticker.C:
			if err := h.Heartbeat(ctx); err != nil {
				h.logger.Warn().Err(err).Msg("heartbeat check failed")
			}
		}
	}
}

// Heartbeat performs one check. The failover fires only when the activity
// lease has expired AND automation is explicitly disabled; an absent
// automation flag means the state is unknown and nothing is interrupted.
func (h *HeartbeatDriver) Heartbeat(ctx context.Context) error {
	h.bus.Publish(events.EventKeepalive, events.Payload{})

	active, err := h.leases.ActivityPresent(ctx)
	if err != nil {
		// Unknown state: fail safe, touch nothing.
		return err
	}
	if active {
		return nil
	}

	flag, err := h.leases.AutomationFlag(ctx)
	if err != nil {
		return err
	}
	if flag != lease.FlagFalse {
		// Already enabled, or never set; either way not our call to make.
		return nil
	}

	h.logger.Info().Msg("dj activity lease expired, failing over to automation")
	if err := h.coord.LogoutAll(ctx, true); err != nil {
		return err
	}
	if err := h.coord.enableAutomation(ctx); err != nil {
		return err
	}
	telemetry.HeartbeatFailovers.Inc()
	return nil
}
