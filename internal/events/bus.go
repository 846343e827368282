/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventAll subscribes to every event. Payloads carry the concrete type
	// under the "event" key.
	EventAll EventType = "*"

	EventScheduleFired     EventType = "schedule.fired"
	EventScheduleLaunchErr EventType = "schedule.launch_failed"
	EventSessionStarted    EventType = "session.started"
	EventTrackStarted      EventType = "session.track_started"
	EventSessionFinished   EventType = "session.finished"
	EventSchedulerState    EventType = "scheduler.state"
	EventLeadership        EventType = "scheduler.leadership"
	EventListActivated     EventType = "list.activated"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers of eventType and of EventAll.
// A nil bus drops the event.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	if payload == nil {
		payload = Payload{}
	}
	payload["event"] = string(eventType)

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	subs = append(subs, b.subs[EventAll]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
