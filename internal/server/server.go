/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the arbiter's dependencies together and owns the
// HTTP listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_airlog/internal/api"
	"github.com/friendsincode/muninn_airlog/internal/cache"
	"github.com/friendsincode/muninn_airlog/internal/config"
	"github.com/friendsincode/muninn_airlog/internal/db"
	"github.com/friendsincode/muninn_airlog/internal/eventbus"
	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/lease"
	"github.com/friendsincode/muninn_airlog/internal/listeners"
	"github.com/friendsincode/muninn_airlog/internal/mail"
	"github.com/friendsincode/muninn_airlog/internal/onair"
	"github.com/friendsincode/muninn_airlog/internal/relay"
	"github.com/friendsincode/muninn_airlog/internal/telemetry"
	"github.com/friendsincode/muninn_airlog/internal/tracks"
	"github.com/friendsincode/muninn_airlog/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	leases    lease.Store
	playCache *cache.Cache
	bus       *events.Bus
	matcher   *tracks.Matcher
	coord     *onair.Coordinator
	heartbeat *onair.HeartbeatDriver
	relay     *relay.Service
	bridge    *eventbus.Bridge
	tracer    *telemetry.TracerProvider
	updates   *version.Checker
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New builds a fully wired server. Nothing starts listening until Run.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("muninn-airlog-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	leaseStore, err := lease.NewRedis(lease.RedisConfig{
		Addr:        s.cfg.RedisAddr,
		Password:    s.cfg.RedisPassword,
		DB:          s.cfg.RedisDB,
		DJTimeout:   s.cfg.DJTimeout,
		NoDJTimeout: s.cfg.NoDJTimeout,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("connect lease store: %w", err)
	}
	s.leases = leaseStore
	s.DeferClose(leaseStore.Close)

	playCache, err := cache.New(cache.Config{
		RedisAddr:      s.cfg.RedisAddr,
		RedisPassword:  s.cfg.RedisPassword,
		RedisDB:        s.cfg.RedisDB,
		NowPlayingTTL:  time.Minute,
		PlaylistTTL:    5 * time.Minute,
		DisableOnError: true,
	}, s.logger)
	if err != nil {
		// The read cache is an optimization; the arbiter works without it.
		s.logger.Warn().Err(err).Msg("playlist cache unavailable, continuing without it")
	} else {
		s.playCache = playCache
		s.DeferClose(playCache.Close)
	}

	var invalidator tracks.Invalidator
	if s.playCache != nil {
		invalidator = s.playCache
	}
	s.matcher = tracks.NewMatcher(database, s.bus, invalidator, s.logger)

	var counter onair.ListenerCounter
	if s.cfg.IcecastURL != "" {
		counter = listeners.NewPoller(s.cfg.IcecastURL, s.cfg.IcecastMounts, s.logger)
	}

	mailer := mail.NewSender(*s.cfg, s.logger)

	s.coord = onair.NewCoordinator(
		database,
		s.leases,
		s.matcher,
		s.bus,
		s.playCache,
		mailer,
		counter,
		s.cfg.LockWait,
		s.logger,
	)
	s.heartbeat = onair.NewHeartbeatDriver(s.coord, s.cfg.HeartbeatInterval, s.logger)

	if s.cfg.RelayAllURL != "" || s.cfg.RelayDJURL != "" {
		s.relay = relay.NewService(relay.Config{
			AllURL: s.cfg.RelayAllURL,
			DJURL:  s.cfg.RelayDJURL,
		}, s.bus, s.logger)
	}

	if s.cfg.NATSURL != "" {
		bridge, err := eventbus.NewBridge(s.cfg.NATSURL, s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		s.bridge = bridge
		s.DeferClose(bridge.Close)
	}

	s.api = api.New(database, s.coord, onair.NewAutomationController(s.coord), s.heartbeat, s.matcher, s.logger)

	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","version":"` + version.Version + `"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}

// Run starts background workers and the HTTP listener, then blocks until
// ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.TracingEnabled {
		tracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
			ServiceName:    "muninn-airlog",
			ServiceVersion: version.Version,
			OTLPEndpoint:   s.cfg.OTLPEndpoint,
			Enabled:        true,
			SampleRate:     s.cfg.TracingSampleRate,
		}, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("tracing init failed, continuing without tracing")
		} else {
			s.tracer = tracer
		}
	}

	s.startBackgroundWorkers(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http listener starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http shutdown error")
	}

	s.stopBackgroundWorkers()

	if s.tracer != nil {
		if err := s.tracer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("tracer shutdown error")
		}
	}

	return nil
}

func (s *Server) startBackgroundWorkers(ctx context.Context) {
	ctx, s.bgCancel = context.WithCancel(ctx)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.heartbeat.Run(ctx)
	}()

	if s.relay != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.relay.Start(ctx)
		}()
	}

	if s.bridge != nil {
		if err := s.bridge.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("nats bridge start failed")
		}
	}

	s.updates = version.NewChecker(s.logger)
	s.updates.Start(ctx)
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgCancel = nil
	}
	s.bgWG.Wait()
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
