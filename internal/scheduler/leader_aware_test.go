/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/events"
)

type fakeElection struct {
	ch      chan bool
	stopped bool
}

func (e *fakeElection) Start(ctx context.Context) error { return nil }
func (e *fakeElection) Stop() error                     { e.stopped = true; return nil }
func (e *fakeElection) IsLeader() bool                  { return false }
func (e *fakeElection) LeaderCh() <-chan bool           { return e.ch }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLeaderAwareFollowsLeadership(t *testing.T) {
	svc := New(newTestStore(t), &recordingLauncher{}, clock.Real{}, nil,
		Options{PollInterval: 10 * time.Millisecond, Location: time.UTC}, zerolog.Nop())
	election := &fakeElection{ch: make(chan bool, 1)}
	bus := events.NewBus()
	leadership := bus.Subscribe(events.EventLeadership)

	las := NewLeaderAware(svc, election, bus, zerolog.Nop())
	if err := las.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if svc.Running() {
		t.Fatal("follower must not run the scheduler")
	}

	election.ch <- true
	waitFor(t, svc.Running)
	if p := <-leadership; p["leader"] != true {
		t.Fatalf("unexpected leadership event %#v", p)
	}

	election.ch <- false
	waitFor(t, func() bool { return !svc.Running() })

	if err := las.Stop(); err != nil {
		t.Fatal(err)
	}
	if !election.stopped {
		t.Fatal("election should be stopped")
	}
}
