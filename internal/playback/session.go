/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/audio"
	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/executor"
	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/telemetry"
)

func (r *Runner) runSingle(ctx context.Context, rep executor.Reporter, sched models.Schedule, path string, logger zerolog.Logger) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPlayback, "playback.session.single")
	defer span.End()

	kind := string(models.ScheduleKindSingle)
	start := r.clock.Now()
	r.publish(events.EventSessionStarted, events.Payload{
		"schedule_id": sched.ID,
		"kind":        kind,
		"target":      path,
	})

	rep.SetState(executor.StatePlaying)
	rep.SetTrack(path, 0)
	r.publish(events.EventTrackStarted, events.Payload{
		"schedule_id": sched.ID,
		"path":        path,
		"track":       1,
	})

	played := 1
	if err := r.playTrack(ctx, path, time.Time{}); err != nil {
		telemetry.PlaybackErrorsTotal.WithLabelValues(kind).Inc()
		telemetry.RecordError(span, err)
		logger.Error().Err(err).Str("path", path).Msg("playback failed")
	} else {
		telemetry.TracksPlayedTotal.WithLabelValues(kind).Inc()
		logger.Info().Str("path", path).Msg("played file")
	}

	rep.SetState(executor.StateFinished)
	r.finish(sched, kind, played, start)
}

// runPlaylist plays tracks until the duration budget or the track cap is
// used up. Each pass over the folder is reshuffled when shuffling.
func (r *Runner) runPlaylist(ctx context.Context, rep executor.Reporter, sched models.Schedule, tracks []string, logger zerolog.Logger) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPlayback, "playback.session.playlist")
	defer span.End()

	kind := string(models.ScheduleKindPlaylist)
	start := r.clock.Now()
	deadline := start.Add(sched.EffectiveDuration())
	interval := sched.EffectiveInterval()
	trackCap, bounded := sched.TrackCap()

	telemetry.AddSpanAttributes(span, map[string]any{
		"playlist.tracks":   len(tracks),
		"playlist.duration": sched.EffectiveDuration(),
		"playlist.interval": interval,
		"playlist.shuffle":  sched.ShuffleMode,
	})

	rep.SetState(executor.StateEnumerating)
	r.publish(events.EventSessionStarted, events.Payload{
		"schedule_id": sched.ID,
		"kind":        kind,
		"target":      sched.FolderPath,
		"tracks":      len(tracks),
		"deadline":    deadline,
	})
	logger.Info().
		Int("tracks", len(tracks)).
		Dur("duration", sched.EffectiveDuration()).
		Dur("interval", interval).
		Bool("shuffle", sched.ShuffleMode).
		Msg("playlist session started")

	var queue []string
	played := 0

	for r.clock.Now().Before(deadline) && (!bounded || played < trackCap) {
		if len(queue) == 0 {
			queue = r.nextPass(tracks, sched.ShuffleMode)
		}
		path := queue[0]
		queue = queue[1:]

		rep.SetState(executor.StatePlaying)
		rep.SetTrack(path, played)
		r.publish(events.EventTrackStarted, events.Payload{
			"schedule_id": sched.ID,
			"path":        path,
			"track":       played + 1,
		})

		err := r.playTrack(ctx, path, deadline)
		if errors.Is(err, errLeaseDeadline) || ctx.Err() != nil {
			break
		}
		played++
		if err != nil {
			telemetry.PlaybackErrorsTotal.WithLabelValues(kind).Inc()
			logger.Warn().Err(err).Str("path", path).Int("track", played).Msg("track failed, continuing")
		} else {
			telemetry.TracksPlayedTotal.WithLabelValues(kind).Inc()
			logger.Debug().Str("path", path).Int("track", played).Msg("track finished")
		}

		now := r.clock.Now()
		if !now.Before(deadline) || (bounded && played >= trackCap) {
			break
		}
		wait := interval
		if err != nil && wait < r.busyPoll {
			wait = r.busyPoll
		}
		if wait > 0 {
			if remaining := deadline.Sub(now); remaining < wait {
				wait = remaining
			}
			rep.SetState(executor.StateWaitingInterval)
			if err := clock.Sleep(ctx, r.clock, wait); err != nil {
				break
			}
		}
	}

	rep.SetState(executor.StateFinished)
	telemetry.AddSpanAttributes(span, map[string]any{"playlist.played": played})
	r.finish(sched, kind, played, start)
}

func (r *Runner) finish(sched models.Schedule, kind string, played int, start time.Time) {
	elapsed := r.clock.Now().Sub(start)
	telemetry.SessionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	r.publish(events.EventSessionFinished, events.Payload{
		"schedule_id":   sched.ID,
		"kind":          kind,
		"tracks_played": played,
		"elapsed_ms":    elapsed.Milliseconds(),
	})
	r.logger.Info().
		Str("schedule_id", sched.ID).
		Str("kind", kind).
		Int("tracks_played", played).
		Dur("elapsed", elapsed).
		Msg("playback session finished")
}

// nextPass returns the play order for one pass over the folder.
func (r *Runner) nextPass(tracks []string, shuffle bool) []string {
	pass := make([]string, len(tracks))
	copy(pass, tracks)
	if shuffle {
		r.shuffle(pass)
	}
	return pass
}

// playTrack starts path and blocks until the backend is idle again, the
// deadline passes or ctx is done. The track is stopped in the latter two
// cases. A zero deadline means no limit.
func (r *Runner) playTrack(ctx context.Context, path string, deadline time.Time) error {
	if r.lease != nil {
		waitStart := r.clock.Now()
		if err := r.lease.acquire(ctx, r.clock, r.busyPoll, deadline); err != nil {
			return err
		}
		defer r.lease.release()
		telemetry.DeviceLeaseWait.Observe(r.clock.Now().Sub(waitStart).Seconds())
	}

	gen, err := r.startTrack(path)
	if err != nil {
		return fmt.Errorf("play %s: %w", path, err)
	}

	for r.ownsDevice(gen, path) && r.backend.Busy() {
		wait := r.busyPoll
		if !deadline.IsZero() {
			remaining := deadline.Sub(r.clock.Now())
			if remaining <= 0 {
				r.stopIfOwner(gen, path)
				return nil
			}
			if remaining < wait {
				wait = remaining
			}
		}
		if err := clock.Sleep(ctx, r.clock, wait); err != nil {
			r.stopIfOwner(gen, path)
			return err
		}
	}
	return nil
}

// startTrack plays path and returns the generation that owns the device.
func (r *Runner) startTrack(path string) (uint64, error) {
	r.playMu.Lock()
	defer r.playMu.Unlock()
	if err := r.backend.Play(path); err != nil {
		return 0, err
	}
	r.playGen++
	return r.playGen, nil
}

// ownsDevice reports whether the track started as gen is still the one
// loaded. A newer Play from this runner, or a backend reporting another
// path, means the track was replaced.
func (r *Runner) ownsDevice(gen uint64, path string) bool {
	r.playMu.Lock()
	defer r.playMu.Unlock()
	return r.ownsLocked(gen, path)
}

func (r *Runner) ownsLocked(gen uint64, path string) bool {
	if r.playGen != gen {
		return false
	}
	if np, ok := r.backend.(audio.NowPlaying); ok {
		if cur := np.Current(); cur != "" && cur != path {
			return false
		}
	}
	return true
}

// stopIfOwner stops the backend unless another session has taken it over.
func (r *Runner) stopIfOwner(gen uint64, path string) {
	r.playMu.Lock()
	defer r.playMu.Unlock()
	if r.ownsLocked(gen, path) {
		r.backend.Stop()
	}
}
