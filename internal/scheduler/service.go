/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler fires due schedules once per calendar minute.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/store"
	"github.com/friendsincode/belfry/internal/telemetry"
)

// ErrTooManyFailures is returned by Run when evaluation failed
// MaxConsecutiveFailures times in a row.
var ErrTooManyFailures = errors.New("scheduler stopped after repeated evaluation failures")

// Loop states reported by Status.
const (
	StateStopped = "stopped"
	StateRunning = "running"
	StateFailed  = "failed"
)

// Launcher starts a playback session for a due schedule without blocking.
type Launcher interface {
	Launch(ctx context.Context, sched models.Schedule) error
}

// Options configure the loop. Zero values fall back to defaults.
type Options struct {
	PollInterval           time.Duration
	ErrorBackoff           time.Duration
	MaxConsecutiveFailures int
	StopTimeout            time.Duration
	Location               *time.Location
	DefaultListName        string
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 5 * time.Second
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = 5
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.DefaultListName == "" {
		o.DefaultListName = "Default"
	}
}

// Status is a snapshot of the loop for health and status endpoints.
type Status struct {
	State               string    `json:"state"`
	StartedAt           time.Time `json:"started_at"`
	CurrentMinute       string    `json:"current_minute"`
	LastEvaluatedMinute string    `json:"last_evaluated_minute"`
	LastEvaluation      time.Time `json:"last_evaluation"`
	ActiveListID        string    `json:"active_list_id,omitempty"`
	FiredThisMinute     int       `json:"fired_this_minute"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Upcoming is the next fire time of one schedule.
type Upcoming struct {
	ScheduleID string              `json:"schedule_id"`
	Kind       models.ScheduleKind `json:"kind"`
	Time       string              `json:"time"`
	Target     string              `json:"target"`
	At         time.Time           `json:"at"`
}

// Service is the minute-resolution polling loop.
type Service struct {
	store    store.Store
	launcher Launcher
	clock    clock.Clock
	bus      *events.Bus
	opts     Options
	logger   zerolog.Logger
	tracker  *Tracker

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	status        Status
	lastEvaluated MinuteKey
}

// New constructs the scheduler service. bus may be nil.
func New(st store.Store, launcher Launcher, clk clock.Clock, bus *events.Bus, opts Options, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	opts.applyDefaults()
	return &Service{
		store:    st,
		launcher: launcher,
		clock:    clk,
		bus:      bus,
		opts:     opts,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		tracker:  NewTracker(),
		status:   Status{State: StateStopped},
	}
}

// Start runs the loop in the background. Starting a running loop is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("scheduler already running")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		if err := s.Run(runCtx); err != nil {
			s.logger.Error().Err(err).Msg("scheduler loop exited")
		}
	}()
	return nil
}

// Stop cancels the loop and waits up to StopTimeout for it to exit.
// Stopping a stopped loop is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warn().Dur("timeout", s.opts.StopTimeout).Msg("scheduler did not stop in time")
	}
}

// Running reports whether the loop goroutine is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the loop.
func (s *Service) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.CurrentMinute = s.tracker.Key().String()
	st.FiredThisMinute = s.tracker.Len()
	return st
}

// Run executes the loop on the calling goroutine until ctx is done or the
// failure limit is reached. Start is the usual entry point.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.status.State = StateRunning
	s.status.StartedAt = s.clock.Now()
	s.status.ConsecutiveFailures = 0
	s.status.LastError = ""
	s.lastEvaluated = MinuteKey{}
	s.mu.Unlock()

	telemetry.SchedulerRunning.Set(1)
	s.publishState(StateRunning)
	s.logger.Info().
		Dur("poll_interval", s.opts.PollInterval).
		Str("location", s.opts.Location.String()).
		Msg("scheduler loop started")

	err := s.loop(ctx)

	final := StateStopped
	if errors.Is(err, ErrTooManyFailures) {
		final = StateFailed
	}
	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.status.State = final
	s.mu.Unlock()

	telemetry.SchedulerRunning.Set(0)
	s.publishState(final)
	s.logger.Info().Str("state", final).Msg("scheduler loop stopped")
	return err
}

func (s *Service) loop(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := s.opts.PollInterval
		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			telemetry.SchedulerErrorsTotal.Inc()
			telemetry.SchedulerConsecutiveFailures.Set(float64(failures))
			s.recordFailure(failures, err)
			s.logger.Error().Err(err).Int("consecutive_failures", failures).Msg("schedule evaluation failed")

			if failures >= s.opts.MaxConsecutiveFailures {
				return fmt.Errorf("%w: %d in a row, last: %v", ErrTooManyFailures, failures, err)
			}
			wait = s.opts.ErrorBackoff
		} else if failures > 0 {
			failures = 0
			telemetry.SchedulerConsecutiveFailures.Set(0)
			s.recordFailure(0, nil)
			s.logger.Info().Msg("schedule evaluation recovered")
		}

		if err := clock.Sleep(ctx, s.clock, wait); err != nil {
			return nil
		}
	}
}

// tick runs one wake of the loop. It evaluates at most once per minute key;
// a failed evaluation leaves the minute open so the next wake retries it.
func (s *Service) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
			s.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered scheduler panic")
		}
	}()

	telemetry.SchedulerTicksTotal.Inc()

	now := s.clock.Now().In(s.opts.Location)
	key := KeyFor(now)
	if s.tracker.Observe(key) {
		s.logger.Debug().Str("minute", key.String()).Msg("minute changed")
	}

	s.mu.Lock()
	evaluated := s.lastEvaluated == key
	s.mu.Unlock()
	if evaluated {
		return nil
	}

	if err := s.evaluate(ctx, now); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastEvaluated = key
	s.status.LastEvaluatedMinute = key.String()
	s.status.LastEvaluation = now
	s.mu.Unlock()
	return nil
}

func (s *Service) evaluate(ctx context.Context, now time.Time) (err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerScheduler, "scheduler.evaluate")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	telemetry.SchedulerEvaluationsTotal.Inc()

	list, err := s.activeList(ctx)
	if err != nil {
		return err
	}

	schedules, err := s.store.ListSchedules(ctx, list.ID, store.ScheduleFilter{ExcludeMuted: true})
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	telemetry.AddSpanAttributes(span, map[string]any{
		"scheduler.list_id":   list.ID,
		"scheduler.schedules": len(schedules),
		"scheduler.minute":    now.Format("2006-01-02 15:04"),
	})

	for _, sched := range schedules {
		if !sched.MatchesAt(now) {
			continue
		}
		if !s.tracker.Mark(sched.ID) {
			continue
		}
		s.fire(ctx, sched)
	}
	return nil
}

func (s *Service) fire(ctx context.Context, sched models.Schedule) {
	kind := string(sched.Kind)
	telemetry.SchedulesFiredTotal.WithLabelValues(kind).Inc()
	s.bus.Publish(events.EventScheduleFired, events.Payload{
		"schedule_id": sched.ID,
		"list_id":     sched.ScheduleListID,
		"kind":        kind,
		"time":        sched.Time,
		"target":      sched.Target(),
	})
	s.logger.Info().
		Str("schedule_id", sched.ID).
		Str("kind", kind).
		Str("time", sched.Time).
		Str("target", sched.Target()).
		Msg("schedule due")

	if err := s.launcher.Launch(ctx, sched); err != nil {
		telemetry.LaunchErrorsTotal.WithLabelValues(kind).Inc()
		s.bus.Publish(events.EventScheduleLaunchErr, events.Payload{
			"schedule_id": sched.ID,
			"kind":        kind,
			"error":       err.Error(),
		})
		s.logger.Warn().Err(err).Str("schedule_id", sched.ID).Msg("schedule not launched")
	}
}

// activeList returns the active list, creating the default list when no
// list is active.
func (s *Service) activeList(ctx context.Context) (*models.ScheduleList, error) {
	list, err := s.store.GetActiveList(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active list: %w", err)
	}
	if list == nil {
		list, err = s.store.CreateList(ctx, s.opts.DefaultListName, true)
		if err != nil {
			return nil, fmt.Errorf("create default list: %w", err)
		}
		s.logger.Info().Str("list_id", list.ID).Str("name", list.Name).Msg("no active schedule list, created default")
		s.bus.Publish(events.EventListActivated, events.Payload{"list_id": list.ID, "name": list.Name})
	}

	s.mu.Lock()
	s.status.ActiveListID = list.ID
	s.mu.Unlock()
	return list, nil
}

// NextRuns previews the next fire time of every unmuted schedule in the
// active list, soonest first. Schedules without days are omitted. A limit
// of zero or less returns all.
func (s *Service) NextRuns(ctx context.Context, now time.Time, limit int) ([]Upcoming, error) {
	list, err := s.store.GetActiveList(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active list: %w", err)
	}
	if list == nil {
		return []Upcoming{}, nil
	}
	schedules, err := s.store.ListSchedules(ctx, list.ID, store.ScheduleFilter{ExcludeMuted: true})
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	now = now.In(s.opts.Location)
	out := make([]Upcoming, 0, len(schedules))
	for i := range schedules {
		sched := &schedules[i]
		at := sched.NextRun(now)
		if at.IsZero() {
			continue
		}
		out = append(out, Upcoming{
			ScheduleID: sched.ID,
			Kind:       sched.Kind,
			Time:       sched.Time,
			Target:     sched.Target(),
			At:         at,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) recordFailure(failures int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ConsecutiveFailures = failures
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
}

func (s *Service) publishState(state string) {
	s.bus.Publish(events.EventSchedulerState, events.Payload{"state": state})
}
