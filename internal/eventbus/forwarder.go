/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards in-process events to an external broker so
// dashboards and other instances can follow playback.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/telemetry"
)

const (
	publishTimeout  = 2 * time.Second
	defaultMaxFails = 5
	defaultCooldown = 30 * time.Second
)

// Publisher sends encoded events to a broker subject or channel.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Message is the wire format of a forwarded event.
type Message struct {
	Event     events.EventType `json:"event"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Marshal encodes an event.
func Marshal(eventType events.EventType, payload events.Payload, nodeID string, now time.Time) ([]byte, error) {
	return json.Marshal(Message{
		Event:     eventType,
		Payload:   payload,
		Timestamp: now.UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

// Unmarshal decodes an event.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	SubjectPrefix string
	NodeID        string
	MaxFailures   int           // consecutive publish failures before pausing
	Cooldown      time.Duration // pause length once MaxFailures is reached
}

// Forwarder republishes every bus event to a Publisher as
// "<prefix>.<event type>".
type Forwarder struct {
	bus    *events.Bus
	pub    Publisher
	cfg    ForwarderConfig
	logger zerolog.Logger

	mu          sync.Mutex
	failCount   int
	pausedUntil time.Time
	now         func() time.Time
}

// NewForwarder creates a forwarder. Call Run to start it.
func NewForwarder(bus *events.Bus, pub Publisher, cfg ForwarderConfig, logger zerolog.Logger) *Forwarder {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "belfry.events"
	}
	if cfg.NodeID == "" {
		cfg.NodeID = defaultNodeID()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFails
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Forwarder{
		bus:    bus,
		pub:    pub,
		cfg:    cfg,
		logger: logger.With().Str("component", "event_forwarder").Logger(),
		now:    time.Now,
	}
}

// Run forwards events until ctx is done, then closes the publisher.
func (f *Forwarder) Run(ctx context.Context) {
	sub := f.bus.Subscribe(events.EventAll)
	defer f.bus.Unsubscribe(events.EventAll, sub)
	defer func() {
		if err := f.pub.Close(); err != nil {
			f.logger.Warn().Err(err).Msg("close event publisher")
		}
	}()

	f.logger.Info().Str("prefix", f.cfg.SubjectPrefix).Str("node_id", f.cfg.NodeID).Msg("event forwarding started")

	for {
		select {
		case <-ctx.Done():
			f.logger.Info().Msg("event forwarding stopped")
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			f.forward(ctx, payload)
		}
	}
}

// Subject returns the broker subject for an event type.
func (f *Forwarder) Subject(eventType events.EventType) string {
	return f.cfg.SubjectPrefix + "." + strings.ReplaceAll(string(eventType), "*", "all")
}

func (f *Forwarder) forward(ctx context.Context, payload events.Payload) {
	eventType := events.EventType(fmt.Sprint(payload["event"]))

	f.mu.Lock()
	paused := f.now().Before(f.pausedUntil)
	f.mu.Unlock()
	if paused {
		return
	}

	data, err := Marshal(eventType, payload, f.cfg.NodeID, f.now())
	if err != nil {
		f.logger.Error().Err(err).Str("event", string(eventType)).Msg("failed to encode event")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := f.pub.Publish(pubCtx, f.Subject(eventType), data); err != nil {
		telemetry.EventForwardErrorsTotal.Inc()
		f.handleFailure(err, eventType)
		return
	}

	telemetry.EventsForwardedTotal.WithLabelValues(string(eventType)).Inc()
	f.mu.Lock()
	f.failCount = 0
	f.mu.Unlock()
}

func (f *Forwarder) handleFailure(err error, eventType events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failCount++
	f.logger.Warn().Err(err).Str("event", string(eventType)).Int("fail_count", f.failCount).Msg("failed to publish event")

	if f.failCount >= f.cfg.MaxFailures {
		f.pausedUntil = f.now().Add(f.cfg.Cooldown)
		f.failCount = 0
		f.logger.Warn().Dur("cooldown", f.cfg.Cooldown).Msg("event broker failing, pausing forwarding")
	}
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "belfry"
	}
	return host + "-" + uuid.NewString()[:8]
}
