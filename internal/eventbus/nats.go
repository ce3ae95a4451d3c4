/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event bus onto NATS so peer
// instances (web UI hosts, archivers) observe session and track events
// from this arbiter. Local delivery never depends on NATS being up.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_airlog/internal/events"
)

const subjectPrefix = "muninn.events."

// originKey marks payloads injected from a remote node so the outbound
// mirror loop does not publish them back to NATS.
const originKey = "_origin_node"

// bridgedEvents are the event types mirrored across instances. Cache
// invalidation events stay node-local.
var bridgedEvents = []events.EventType{
	events.EventSessionStart,
	events.EventSessionEnd,
	events.EventTrackChange,
	events.EventTrackEdit,
	events.EventTrackDelete,
	events.EventKeepalive,
	events.EventAutomationEnabled,
	events.EventAutomationDisabled,
}

// Bridge connects an in-process events.Bus to a NATS server. Outbound:
// every bridged local event is published to muninn.events.<type>.
// Inbound: events from other nodes are re-published on the local bus.
type Bridge struct {
	conn   *nats.Conn
	bus    *events.Bus
	logger zerolog.Logger
	nodeID string

	subs   []events.Subscriber
	remote *nats.Subscription
	cancel context.CancelFunc
}

// natsMessage is the wire envelope. NodeID suppresses echo; MessageID
// lets downstream consumers deduplicate.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// NewBridge connects to NATS and prepares the bridge. The connection
// reconnects indefinitely; while disconnected, outbound publishes are
// buffered by the NATS client and local delivery is unaffected.
func NewBridge(url string, bus *events.Bus, logger zerolog.Logger) (*Bridge, error) {
	logger = logger.With().Str("component", "eventbus").Logger()

	conn, err := nats.Connect(url,
		nats.Name("muninn-airlog"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	b := &Bridge{
		conn:   conn,
		bus:    bus,
		logger: logger,
		nodeID: generateNodeID(),
	}

	logger.Info().Str("url", url).Str("node_id", b.nodeID).Msg("nats bridge connected")
	return b, nil
}

// Start begins mirroring. It returns once the subscriptions are
// established; mirroring stops when ctx is cancelled or Close is
// called.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	remote, err := b.conn.Subscribe(subjectPrefix+">", b.handleRemote)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	b.remote = remote

	for _, eventType := range bridgedEvents {
		sub := b.bus.Subscribe(eventType)
		b.subs = append(b.subs, sub)
		go b.mirror(ctx, eventType, sub)
	}
	return nil
}

// mirror forwards local events of one type to NATS.
func (b *Bridge) mirror(ctx context.Context, eventType events.EventType, sub events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if origin, _ := payload[originKey].(string); origin != "" && origin != b.nodeID {
				continue
			}
			b.publish(eventType, payload)
		}
	}
}

func (b *Bridge) publish(eventType events.EventType, payload events.Payload) {
	msg := natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    b.nodeID,
		MessageID: uuid.NewString(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal nats message")
		return
	}

	if err := b.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		b.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to nats")
	}
}

// handleRemote delivers events from peer nodes to local subscribers.
func (b *Bridge) handleRemote(m *nats.Msg) {
	var msg natsMessage
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		b.logger.Error().Err(err).Str("subject", m.Subject).Msg("failed to unmarshal nats message")
		return
	}

	if msg.NodeID == b.nodeID {
		return
	}

	payload := msg.Payload
	if payload == nil {
		payload = events.Payload{}
	}
	payload[originKey] = msg.NodeID

	b.bus.Publish(msg.EventType, payload)

	b.logger.Debug().
		Str("event_type", string(msg.EventType)).
		Str("source_node", msg.NodeID).
		Msg("delivered remote event")
}

// Close stops mirroring and drains the connection.
func (b *Bridge) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	for i, sub := range b.subs {
		b.bus.Unsubscribe(bridgedEvents[i], sub)
	}
	b.subs = nil
	if b.remote != nil {
		b.remote.Unsubscribe()
	}
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
			return err
		}
	}
	return nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
