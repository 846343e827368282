/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/belfry/internal/clock"
)

// errLeaseDeadline means the device did not free up before the session ended.
var errLeaseDeadline = errors.New("audio device busy until session deadline")

// deviceLease hands the audio device to one track at a time.
type deviceLease struct {
	sem chan struct{}
}

func newDeviceLease() *deviceLease {
	return &deviceLease{sem: make(chan struct{}, 1)}
}

func (l *deviceLease) tryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *deviceLease) release() {
	select {
	case <-l.sem:
	default:
	}
}

// acquire waits for the device, polling on clk every poll interval. A zero
// deadline waits until ctx is done.
func (l *deviceLease) acquire(ctx context.Context, clk clock.Clock, poll time.Duration, deadline time.Time) error {
	for {
		if l.tryAcquire() {
			return nil
		}
		wait := poll
		if !deadline.IsZero() {
			remaining := deadline.Sub(clk.Now())
			if remaining <= 0 {
				return errLeaseDeadline
			}
			if remaining < wait {
				wait = remaining
			}
		}
		if err := clock.Sleep(ctx, clk, wait); err != nil {
			return err
		}
	}
}
