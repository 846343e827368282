/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback turns a due schedule into a running playback session.
package playback

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/audio"
	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/executor"
	"github.com/friendsincode/belfry/internal/media"
	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/telemetry"
)

const defaultBusyPoll = 250 * time.Millisecond

// Options tune a Runner.
type Options struct {
	// Serialize gives one session at a time the audio device for the
	// length of a track. When false the most recent Play call wins.
	Serialize bool

	// BusyPoll is how often a session checks whether its track finished.
	BusyPoll time.Duration

	// Rand shuffles playlists. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Runner prepares sessions for due schedules and hands them to a dispatcher.
type Runner struct {
	backend    audio.Backend
	library    *media.Library
	dispatcher executor.Dispatcher
	clock      clock.Clock
	bus        *events.Bus
	logger     zerolog.Logger

	lease    *deviceLease
	busyPoll time.Duration

	// playGen counts Play calls; a session owns the device only while
	// the generation it started with is current.
	playMu  sync.Mutex
	playGen uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRunner creates a runner. bus may be nil.
func NewRunner(backend audio.Backend, library *media.Library, dispatcher executor.Dispatcher, clk clock.Clock, bus *events.Bus, opts Options, logger zerolog.Logger) *Runner {
	if clk == nil {
		clk = clock.Real{}
	}
	if opts.BusyPoll <= 0 {
		opts.BusyPoll = defaultBusyPoll
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	r := &Runner{
		backend:    backend,
		library:    library,
		dispatcher: dispatcher,
		clock:      clk,
		bus:        bus,
		logger:     logger.With().Str("component", "playback").Logger(),
		busyPoll:   opts.BusyPoll,
		rng:        opts.Rand,
	}
	if opts.Serialize {
		r.lease = newDeviceLease()
	}
	return r
}

// Launch resolves the schedule's target and dispatches a session for it.
// Configuration problems (missing file, empty folder, unknown kind) are
// returned before anything is dispatched. An unavailable backend is logged
// and nothing is dispatched.
func (r *Runner) Launch(ctx context.Context, sched models.Schedule) error {
	_, span := telemetry.StartSpan(ctx, telemetry.TracerPlayback, "playback.launch")
	defer span.End()
	telemetry.AddSpanAttributes(span, telemetry.ScheduleAttributes(sched.ID, string(sched.Kind), sched.Target()))

	logger := r.logger.With().
		Str("schedule_id", sched.ID).
		Str("kind", string(sched.Kind)).
		Str("time", sched.Time).
		Logger()

	if !r.backend.Available() {
		logger.Warn().Str("target", sched.Target()).Msg("audio backend unavailable, skipping playback")
		return nil
	}

	switch sched.Kind {
	case models.ScheduleKindSingle, "":
		path, err := r.library.ResolveFile(sched.Filename)
		if err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("schedule %s: %w", sched.ID, err)
		}
		r.dispatcher.Dispatch(executor.NewTask(sched.ID, string(models.ScheduleKindSingle), func(ctx context.Context, rep executor.Reporter) {
			r.runSingle(ctx, rep, sched, path, logger)
		}))

	case models.ScheduleKindPlaylist:
		tracks, err := r.library.Tracks(sched.FolderPath)
		if err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("schedule %s: %w", sched.ID, err)
		}
		r.dispatcher.Dispatch(executor.NewTask(sched.ID, string(models.ScheduleKindPlaylist), func(ctx context.Context, rep executor.Reporter) {
			r.runPlaylist(ctx, rep, sched, tracks, logger)
		}))

	default:
		err := fmt.Errorf("%w: unknown kind %q", models.ErrInvalidSchedule, sched.Kind)
		telemetry.RecordError(span, err)
		return err
	}

	return nil
}

// PlayFile plays one file to completion on the caller's goroutine.
func (r *Runner) PlayFile(ctx context.Context, path string) error {
	if !r.backend.Available() {
		return audio.ErrUnavailable
	}
	resolved, err := r.library.ResolveFile(path)
	if err != nil {
		return err
	}
	return r.playTrack(ctx, resolved, time.Time{})
}

func (r *Runner) shuffle(tracks []string) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	r.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

func (r *Runner) publish(eventType events.EventType, payload events.Payload) {
	r.bus.Publish(eventType, payload)
}
