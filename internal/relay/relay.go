/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package relay pushes committed session and track events to the live
// stream relay endpoints. Delivery is fire-and-forget: the bus only ever
// carries events published after a successful relational commit, so a
// failed push is logged and dropped, never retried against state that may
// have moved on.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/telemetry"
)

// Config holds the relay endpoint URLs. An empty URL disables that feed.
type Config struct {
	// AllURL receives public events: track changes and keepalives.
	AllURL string
	// DJURL receives the DJ console feed: session transitions and
	// keepalives.
	DJURL string
}

// Service subscribes to the event bus and relays payloads over HTTP.
type Service struct {
	cfg    Config
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// NewService creates a relay service.
func NewService(cfg Config, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "relay").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start consumes bus events until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("relay service starting")

	trackChange := s.bus.Subscribe(events.EventTrackChange)
	trackEdit := s.bus.Subscribe(events.EventTrackEdit)
	trackDelete := s.bus.Subscribe(events.EventTrackDelete)
	sessionStart := s.bus.Subscribe(events.EventSessionStart)
	sessionEnd := s.bus.Subscribe(events.EventSessionEnd)
	keepalive := s.bus.Subscribe(events.EventKeepalive)

	defer func() {
		s.bus.Unsubscribe(events.EventTrackChange, trackChange)
		s.bus.Unsubscribe(events.EventTrackEdit, trackEdit)
		s.bus.Unsubscribe(events.EventTrackDelete, trackDelete)
		s.bus.Unsubscribe(events.EventSessionStart, sessionStart)
		s.bus.Unsubscribe(events.EventSessionEnd, sessionEnd)
		s.bus.Unsubscribe(events.EventKeepalive, keepalive)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("relay service stopping")
			return
		case payload := <-trackChange:
			s.push(ctx, s.cfg.AllURL, events.EventTrackChange, payload)
		case payload := <-trackEdit:
			s.push(ctx, s.cfg.AllURL, events.EventTrackEdit, payload)
		case payload := <-trackDelete:
			s.push(ctx, s.cfg.AllURL, events.EventTrackDelete, payload)
		case payload := <-sessionStart:
			s.push(ctx, s.cfg.DJURL, events.EventSessionStart, payload)
		case payload := <-sessionEnd:
			s.push(ctx, s.cfg.DJURL, events.EventSessionEnd, payload)
		case payload := <-keepalive:
			s.push(ctx, s.cfg.AllURL, events.EventKeepalive, payload)
			s.push(ctx, s.cfg.DJURL, events.EventKeepalive, payload)
		}
	}
}

// Push sends one event to url. Exposed for direct pushes outside the bus
// loop; failure is logged, never fatal.
func (s *Service) Push(ctx context.Context, url string, event events.EventType, payload events.Payload) error {
	return s.doPush(ctx, url, event, payload)
}

func (s *Service) push(ctx context.Context, url string, event events.EventType, payload events.Payload) {
	if err := s.doPush(ctx, url, event, payload); err != nil {
		telemetry.RelayPushFailures.Inc()
		s.logger.Warn().Err(err).Str("event", string(event)).Str("url", url).Msg("relay push failed")
	}
}

func (s *Service) doPush(ctx context.Context, url string, event events.EventType, payload events.Payload) error {
	if url == "" {
		return nil
	}

	message := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		message[k] = v
	}
	message["event"] = string(event)

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push to relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}
