/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package executor runs playback sessions off the scheduler goroutine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition indicates an invalid state transition was attempted.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionNotFound indicates the session is not (or no longer) registered.
	ErrSessionNotFound = errors.New("session not found")
)

// Reporter receives progress from a running task.
type Reporter interface {
	SetState(state State)
	SetTrack(path string, played int)
}

// Task is one unit of fire-and-forget work, typically a playback session.
type Task struct {
	ID         string
	ScheduleID string
	Kind       string
	Run        func(ctx context.Context, r Reporter)
}

// NewTask returns a task with a fresh session id.
func NewTask(scheduleID, kind string, run func(ctx context.Context, r Reporter)) Task {
	return Task{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Kind:       kind,
		Run:        run,
	}
}

// Dispatcher starts tasks. Dispatch must not block on task completion
// unless the implementation documents otherwise.
type Dispatcher interface {
	Dispatch(task Task)
}

// Inline runs each task synchronously on the caller's goroutine.
// Tests use it for deterministic ordering; one-shot commands use it to
// block until playback ends.
type Inline struct {
	Ctx context.Context
}

// Dispatch runs the task to completion.
func (i Inline) Dispatch(task Task) {
	ctx := i.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	task.Run(ctx, nopReporter{})
}

type nopReporter struct{}

func (nopReporter) SetState(State)       {}
func (nopReporter) SetTrack(string, int) {}

// SessionInfo is a snapshot of a running session.
type SessionInfo struct {
	ID           string    `json:"id"`
	ScheduleID   string    `json:"schedule_id"`
	Kind         string    `json:"kind"`
	State        State     `json:"state"`
	CurrentPath  string    `json:"current_path,omitempty"`
	TracksPlayed int       `json:"tracks_played"`
	StartedAt    time.Time `json:"started_at"`
}

func (s SessionInfo) String() string {
	return fmt.Sprintf("%s[%s %s %s]", s.ID, s.Kind, s.ScheduleID, s.State)
}
