/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle state of a playback session.
type State string

const (
	StateIdle            State = "idle"
	StateEnumerating     State = "enumerating"
	StatePlaying         State = "playing"
	StateWaitingInterval State = "waiting_interval"
	StateFinished        State = "finished"
)

var validTransitions = map[State][]State{
	StateIdle: {
		StateEnumerating,
		StatePlaying,
		StateFinished,
	},
	StateEnumerating: {
		StatePlaying,
		StateFinished,
	},
	StatePlaying: {
		StatePlaying,
		StateWaitingInterval,
		StateFinished,
	},
	StateWaitingInterval: {
		StatePlaying,
		StateFinished,
	},
}

// IsValidTransition reports whether a session may move from one state to another.
func IsValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Registry tracks running sessions for status reporting.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionInfo
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[string]*SessionInfo),
		now:      now,
	}
}

// Add registers a task in the idle state.
func (r *Registry) Add(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[task.ID] = &SessionInfo{
		ID:         task.ID,
		ScheduleID: task.ScheduleID,
		Kind:       task.Kind,
		State:      StateIdle,
		StartedAt:  r.now(),
	}
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Transition moves a session to a new state.
func (r *Registry) Transition(id string, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if !IsValidTransition(info.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, info.State, to)
	}
	info.State = to
	return nil
}

// SetTrack records the track a session is currently playing.
func (r *Registry) SetTrack(id, path string, played int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.sessions[id]; ok {
		info.CurrentPath = path
		info.TracksPlayed = played
	}
}

// Get returns a copy of a session.
func (r *Registry) Get(id string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	return *info, true
}

// List returns all sessions ordered by start time.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, *info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
