/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/telemetry"
)

// Pool runs every dispatched task on its own goroutine. There is no upper
// bound on concurrent tasks.
type Pool struct {
	ctx      context.Context
	registry *Registry
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewPool creates a pool whose tasks inherit ctx. Cancelling ctx asks
// running sessions to stop the backend and return.
func NewPool(ctx context.Context, registry *Registry, logger zerolog.Logger) *Pool {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	return &Pool{
		ctx:      ctx,
		registry: registry,
		logger:   logger.With().Str("component", "executor_pool").Logger(),
	}
}

// Dispatch starts the task and returns immediately.
func (p *Pool) Dispatch(task Task) {
	p.registry.Add(task)
	telemetry.SessionsActive.WithLabelValues(task.Kind).Inc()
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer telemetry.SessionsActive.WithLabelValues(task.Kind).Dec()
		defer p.registry.Remove(task.ID)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Interface("panic", r).
					Str("session_id", task.ID).
					Str("schedule_id", task.ScheduleID).
					Bytes("stack", debug.Stack()).
					Msg("playback session panicked")
			}
		}()

		task.Run(p.ctx, &poolReporter{pool: p, id: task.ID})
	}()
}

// Active returns the sessions currently running.
func (p *Pool) Active() []SessionInfo {
	return p.registry.List()
}

// Registry exposes the pool's session registry.
func (p *Pool) Registry() *Registry {
	return p.registry
}

// Wait blocks until every dispatched task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown waits up to timeout for running tasks and reports whether they
// all returned. Callers cancel the pool context first.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.logger.Warn().Int("sessions", p.registry.Len()).Msg("playback sessions still running at shutdown")
		return false
	}
}

type poolReporter struct {
	pool *Pool
	id   string
}

func (r *poolReporter) SetState(state State) {
	if err := r.pool.registry.Transition(r.id, state); err != nil {
		r.pool.logger.Warn().Err(err).Str("session_id", r.id).Msg("session state not recorded")
	}
}

func (r *poolReporter) SetTrack(path string, played int) {
	r.pool.registry.SetTrack(r.id, path, played)
}
