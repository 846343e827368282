/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/events"
)

// Leadership is the election the leader-aware scheduler follows.
// *leadership.Election satisfies it.
type Leadership interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAwareScheduler wraps a scheduler and only runs it while this
// instance holds leadership, so instances sharing a database never fire
// the same schedule twice.
type LeaderAwareScheduler struct {
	scheduler *Service
	election  Leadership
	bus       *events.Bus
	logger    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler *Service, election Leadership, bus *events.Bus, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		bus:       bus,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins the election and follows leadership changes.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	las.mu.Lock()
	las.cancel = cancel
	las.done = make(chan struct{})
	las.mu.Unlock()

	las.logger.Info().Msg("starting leader-aware scheduler")

	if err := las.election.Start(ctx); err != nil {
		cancel()
		return err
	}

	go las.monitorLeadership(ctx, las.done)
	return nil
}

// Stop stops the scheduler and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")

	las.mu.Lock()
	cancel, done := las.cancel, las.done
	las.cancel = nil
	las.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	las.scheduler.Stop()
	return las.election.Stop()
}

// IsLeader returns whether this instance is the leader.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}

// Scheduler returns the wrapped service.
func (las *LeaderAwareScheduler) Scheduler() *Service {
	return las.scheduler
}

func (las *LeaderAwareScheduler) monitorLeadership(ctx context.Context, done chan struct{}) {
	defer close(done)
	leaderCh := las.election.LeaderCh()

	if las.election.IsLeader() {
		las.onLeadership(ctx, true)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case isLeader := <-leaderCh:
			las.onLeadership(ctx, isLeader)
		}
	}
}

func (las *LeaderAwareScheduler) onLeadership(ctx context.Context, isLeader bool) {
	las.bus.Publish(events.EventLeadership, events.Payload{"leader": isLeader})

	if isLeader {
		las.logger.Info().Msg("became leader, starting scheduler")
		if err := las.scheduler.Start(ctx); err != nil {
			las.logger.Error().Err(err).Msg("start scheduler")
		}
		return
	}

	las.logger.Warn().Msg("lost leadership, stopping scheduler")
	las.scheduler.Stop()
}
