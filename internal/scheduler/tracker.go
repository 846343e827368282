/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// MinuteKey identifies one calendar minute.
type MinuteKey struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// KeyFor returns the minute key of t in t's location.
func KeyFor(t time.Time) MinuteKey {
	return MinuteKey{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// IsZero reports whether the key was never set.
func (k MinuteKey) IsZero() bool {
	return k == MinuteKey{}
}

func (k MinuteKey) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", k.Year, int(k.Month), k.Day, k.Hour, k.Minute)
}

// Tracker remembers which schedules already fired in the current minute.
// Any change of minute key clears it, including a key that moves backwards
// after a clock adjustment.
type Tracker struct {
	mu    sync.Mutex
	key   MinuteKey
	fired map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{fired: make(map[string]struct{})}
}

// Observe records key and clears the tracker when it differs from the
// previous one. It reports whether the key changed.
func (t *Tracker) Observe(key MinuteKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key == t.key {
		return false
	}
	t.key = key
	clear(t.fired)
	return true
}

// Mark records scheduleID as fired. It returns false when it was already
// marked for the current minute.
func (t *Tracker) Mark(scheduleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fired[scheduleID]; ok {
		return false
	}
	t.fired[scheduleID] = struct{}{}
	return true
}

// Has reports whether scheduleID fired in the current minute.
func (t *Tracker) Has(scheduleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.fired[scheduleID]
	return ok
}

// Len returns the number of schedules fired in the current minute.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fired)
}

// Key returns the current minute key.
func (t *Tracker) Key() MinuteKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.key
}
