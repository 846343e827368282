/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio drives the output device.
package audio

import "errors"

// ErrUnavailable is returned by Play when no output device is configured.
var ErrUnavailable = errors.New("audio backend unavailable")

// Backend plays one file at a time on the output device.
type Backend interface {
	// Play starts path and returns without waiting for it to finish. A track
	// already playing is stopped first.
	Play(path string) error
	// Busy reports whether a track is still playing.
	Busy() bool
	// Stop ends the current track, if any.
	Stop()
	// Available reports whether the backend can play at all.
	Available() bool
}

// NowPlaying is implemented by backends that can report the loaded track.
// Current returns "" when nothing is playing.
type NowPlaying interface {
	Current() string
}

// NullBackend is used when audio output is disabled.
type NullBackend struct{}

func (NullBackend) Play(string) error { return ErrUnavailable }
func (NullBackend) Busy() bool        { return false }
func (NullBackend) Stop()             {}
func (NullBackend) Available() bool   { return false }
