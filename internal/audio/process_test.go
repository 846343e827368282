/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func waitIdle(t *testing.T, b Backend, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for b.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("backend still busy")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessBackendUnavailable(t *testing.T) {
	b := NewProcessBackend(ProcessConfig{Bin: "belfry-no-such-player"}, zerolog.Nop())
	if b.Available() {
		t.Fatal("expected missing binary to be unavailable")
	}
	if err := b.Play("bell.mp3"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if b.Busy() {
		t.Fatal("unavailable backend must not be busy")
	}
	b.Stop()
}

func TestProcessBackendFinishes(t *testing.T) {
	requireBinary(t, "true")
	b := NewProcessBackend(ProcessConfig{Bin: "true"}, zerolog.Nop())

	if err := b.Play("bell.mp3"); err != nil {
		t.Fatalf("play: %v", err)
	}
	waitIdle(t, b, 5*time.Second)
}

func TestProcessBackendStopInterrupts(t *testing.T) {
	requireBinary(t, "sleep")
	b := NewProcessBackend(ProcessConfig{Bin: "sleep", StopGrace: time.Second}, zerolog.Nop())

	if err := b.Play("30"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !b.Busy() {
		t.Fatal("expected busy while player runs")
	}

	start := time.Now()
	b.Stop()
	if b.Busy() {
		t.Fatal("expected idle after stop")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("stop took too long: %v", time.Since(start))
	}
}

func TestProcessBackendPlayPreemptsRunningTrack(t *testing.T) {
	requireBinary(t, "sleep")
	b := NewProcessBackend(ProcessConfig{Bin: "sleep", StopGrace: time.Second}, zerolog.Nop())

	if err := b.Play("30"); err != nil {
		t.Fatal(err)
	}
	first := b.current

	if err := b.Play("31"); err != nil {
		t.Fatal(err)
	}
	if first.running() {
		t.Fatal("previous player should have been stopped")
	}
	if got := b.Current(); got != "31" {
		t.Fatalf("current = %q, want 31", got)
	}
	b.Stop()
	if got := b.Current(); got != "" {
		t.Fatalf("current after stop = %q, want empty", got)
	}
}

func TestNullBackend(t *testing.T) {
	var b Backend = NullBackend{}
	if b.Available() || b.Busy() {
		t.Fatal("null backend must be unavailable and idle")
	}
	if err := b.Play("x.mp3"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
