/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/executor"
	"github.com/friendsincode/belfry/internal/media"
	"github.com/friendsincode/belfry/internal/models"
)

var sessionStart = time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

type playRecord struct {
	path string
	at   time.Time
}

// fakeBackend plays every track for trackLen of fake clock time.
type fakeBackend struct {
	mu          sync.Mutex
	clk         *clock.Fake
	unavailable bool
	trackLen    time.Duration
	fail        map[string]bool

	plays     []playRecord
	busyUntil time.Time
	current   string
	stops     int
	preempted int

	// onBusy runs once, on the first Busy call.
	onBusy func()
}

func newFakeBackend(clk *clock.Fake, trackLen time.Duration) *fakeBackend {
	return &fakeBackend{clk: clk, trackLen: trackLen, fail: map[string]bool{}}
}

func (b *fakeBackend) Play(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	b.plays = append(b.plays, playRecord{path: path, at: now})
	if b.fail[filepath.Base(path)] {
		return errors.New("decoder error")
	}
	if now.Before(b.busyUntil) {
		b.preempted++
	}
	b.current = path
	b.busyUntil = now.Add(b.trackLen)
	return nil
}

func (b *fakeBackend) Busy() bool {
	b.mu.Lock()
	hook := b.onBusy
	b.onBusy = nil
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clk.Now().Before(b.busyUntil)
}

func (b *fakeBackend) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.clk.Now().Before(b.busyUntil) {
		return ""
	}
	return b.current
}

// takeOver simulates another session loading path for length.
func (b *fakeBackend) takeOver(path string, length time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	b.plays = append(b.plays, playRecord{path: path, at: now})
	b.current = path
	b.busyUntil = now.Add(length)
}

func (b *fakeBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
	b.busyUntil = time.Time{}
}

func (b *fakeBackend) Available() bool { return !b.unavailable }

func (b *fakeBackend) played() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.plays))
	for i, p := range b.plays {
		out[i] = filepath.Base(p.path)
	}
	return out
}

func writeTracks(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

type fixture struct {
	root    string
	clk     *clock.Fake
	backend *fakeBackend
	runner  *Runner
}

func newFixture(t *testing.T, trackLen time.Duration, opts Options) *fixture {
	t.Helper()
	root := t.TempDir()
	clk := clock.NewFake(sessionStart)
	backend := newFakeBackend(clk, trackLen)
	if opts.BusyPoll == 0 {
		opts.BusyPoll = time.Second
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(42))
	}
	runner := NewRunner(backend, media.NewLibrary(root, zerolog.Nop()), executor.Inline{}, clk, events.NewBus(), opts, zerolog.Nop())
	return &fixture{root: root, clk: clk, backend: backend, runner: runner}
}

func intPtr(v int) *int { return &v }

func playlist(folder string, duration, interval int, maxTracks *int, shuffle bool) models.Schedule {
	return models.Schedule{
		ID:               "pl-1",
		Kind:             models.ScheduleKindPlaylist,
		Time:             "14:30",
		Wednesday:        true,
		FolderPath:       folder,
		PlaylistDuration: intPtr(duration),
		TrackInterval:    intPtr(interval),
		MaxTracks:        maxTracks,
		ShuffleMode:      shuffle,
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlaylistLoopsUntilDeadline(t *testing.T) {
	f := newFixture(t, 10*time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "bells"), "c.mp3", "a.mp3", "b.mp3")

	if err := f.runner.Launch(context.Background(), playlist("bells", 1, 0, nil, false)); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	want := []string{"a.mp3", "b.mp3", "c.mp3", "a.mp3", "b.mp3", "c.mp3"}
	if got := f.backend.played(); !equalStrings(got, want) {
		t.Fatalf("play order = %v, want %v", got, want)
	}
	deadline := sessionStart.Add(time.Minute)
	for _, p := range f.backend.plays {
		if !p.at.Before(deadline) {
			t.Fatalf("track %s started at %s, at or after deadline %s", p.path, p.at, deadline)
		}
	}
	if got := f.clk.Now(); got.Before(deadline) {
		t.Fatalf("session ended at %s before its deadline", got)
	}
}

func TestPlaylistStopsTrackAtDeadline(t *testing.T) {
	f := newFixture(t, 25*time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "long"), "a.mp3", "b.mp3", "c.mp3")

	if err := f.runner.Launch(context.Background(), playlist("long", 1, 0, nil, false)); err != nil {
		t.Fatal(err)
	}

	// a (0-25s), b (25-50s), c cut off at 60s.
	if got := f.backend.played(); !equalStrings(got, []string{"a.mp3", "b.mp3", "c.mp3"}) {
		t.Fatalf("unexpected plays %v", got)
	}
	if f.backend.stops != 1 {
		t.Fatalf("expected the last track to be force-stopped once, got %d stops", f.backend.stops)
	}
	if got := f.clk.Now(); !got.Equal(sessionStart.Add(time.Minute)) {
		t.Fatalf("session ended at %s, want the deadline", got)
	}
}

func TestPlaylistTrackCap(t *testing.T) {
	tests := []struct {
		name      string
		maxTracks *int
		want      int
	}{
		{"cap two", intPtr(2), 2},
		{"cap zero plays nothing", intPtr(0), 0},
		{"negative cap plays nothing", intPtr(-1), 0},
		{"unset cap fills the duration", nil, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10*time.Second, Options{Serialize: true})
			writeTracks(t, filepath.Join(f.root, "p"), "a.mp3", "b.mp3", "c.mp3")

			if err := f.runner.Launch(context.Background(), playlist("p", 1, 0, tt.maxTracks, false)); err != nil {
				t.Fatal(err)
			}
			if got := len(f.backend.played()); got != tt.want {
				t.Fatalf("played %d tracks, want %d", got, tt.want)
			}
		})
	}
}

func TestPlaylistIntervalNeverSleepsPastDeadline(t *testing.T) {
	f := newFixture(t, 20*time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3", "b.mp3")

	// 20s track, then min(50s interval, 40s remaining).
	if err := f.runner.Launch(context.Background(), playlist("p", 1, 50, nil, false)); err != nil {
		t.Fatal(err)
	}
	if got := f.backend.played(); !equalStrings(got, []string{"a.mp3"}) {
		t.Fatalf("unexpected plays %v", got)
	}
	if got := f.clk.Now(); !got.Equal(sessionStart.Add(time.Minute)) {
		t.Fatalf("session ended at %s, want exactly the deadline", got)
	}
}

func TestPlaylistWaitsIntervalBetweenTracks(t *testing.T) {
	f := newFixture(t, 10*time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3", "b.mp3")

	if err := f.runner.Launch(context.Background(), playlist("p", 60, 5, intPtr(2), false)); err != nil {
		t.Fatal(err)
	}
	plays := f.backend.plays
	if len(plays) != 2 {
		t.Fatalf("expected 2 plays, got %d", len(plays))
	}
	if gap := plays[1].at.Sub(plays[0].at); gap != 15*time.Second {
		t.Fatalf("expected 10s track + 5s interval between starts, got %s", gap)
	}
}

func TestPlaylistDefaultDuration(t *testing.T) {
	f := newFixture(t, 10*time.Minute, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3")

	sched := playlist("p", 0, 0, nil, false)
	if err := f.runner.Launch(context.Background(), sched); err != nil {
		t.Fatal(err)
	}
	if got := len(f.backend.played()); got != 6 {
		t.Fatalf("expected 6 ten-minute tracks in the default hour, got %d", got)
	}
}

func TestPlaylistCountsFailedTracks(t *testing.T) {
	f := newFixture(t, 10*time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3", "b.mp3", "c.mp3")
	f.backend.fail["a.mp3"] = true

	if err := f.runner.Launch(context.Background(), playlist("p", 60, 0, intPtr(3), false)); err != nil {
		t.Fatal(err)
	}
	if got := f.backend.played(); !equalStrings(got, []string{"a.mp3", "b.mp3", "c.mp3"}) {
		t.Fatalf("a failing track must count as an attempt, got %v", got)
	}
}

func TestPlaylistSequentialOrderIsStable(t *testing.T) {
	var orders [][]string
	for i := 0; i < 2; i++ {
		f := newFixture(t, time.Second, Options{Serialize: true, Rand: rand.New(rand.NewSource(int64(i)))})
		writeTracks(t, filepath.Join(f.root, "p"), "b.mp3", "A.mp3", "c.MP3", "notes.txt")
		if err := f.runner.Launch(context.Background(), playlist("p", 60, 0, intPtr(3), false)); err != nil {
			t.Fatal(err)
		}
		orders = append(orders, f.backend.played())
	}

	want := []string{"A.mp3", "b.mp3", "c.MP3"}
	for _, got := range orders {
		if !equalStrings(got, want) {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestPlaylistShufflesEveryPass(t *testing.T) {
	f := newFixture(t, time.Second, Options{Serialize: true})
	names := []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3"}
	writeTracks(t, filepath.Join(f.root, "p"), names...)

	if err := f.runner.Launch(context.Background(), playlist("p", 60, 0, intPtr(12), true)); err != nil {
		t.Fatal(err)
	}
	got := f.backend.played()
	if len(got) != 12 {
		t.Fatalf("expected 12 plays, got %d", len(got))
	}
	for pass := 0; pass < 3; pass++ {
		seen := map[string]bool{}
		for _, name := range got[pass*4 : pass*4+4] {
			seen[name] = true
		}
		if len(seen) != len(names) {
			t.Fatalf("pass %d is not a permutation of the folder: %v", pass, got[pass*4:pass*4+4])
		}
	}
}

func TestLaunchConfigurationErrors(t *testing.T) {
	f := newFixture(t, time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "empty"), "readme.txt")
	writeTracks(t, f.root, "bell.mp3")

	tests := []struct {
		name  string
		sched models.Schedule
		want  error
	}{
		{"missing folder", playlist("nope", 1, 0, nil, false), media.ErrNotFound},
		{"folder is a file", playlist("bell.mp3", 1, 0, nil, false), media.ErrNotDirectory},
		{"no audio files", playlist("empty", 1, 0, nil, false), media.ErrNoAudioFiles},
		{"missing file", models.Schedule{ID: "s", Kind: models.ScheduleKindSingle, Filename: "gone.mp3"}, media.ErrNotFound},
		{"unknown kind", models.Schedule{ID: "s", Kind: "radio"}, models.ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.runner.Launch(context.Background(), tt.sched)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if got := f.backend.played(); len(got) != 0 {
		t.Fatalf("no playback expected, got %v", got)
	}
}

func TestLaunchWithUnavailableBackendIsNoop(t *testing.T) {
	f := newFixture(t, time.Second, Options{Serialize: true})
	f.backend.unavailable = true
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3")

	if err := f.runner.Launch(context.Background(), playlist("p", 1, 0, nil, false)); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if got := f.backend.played(); len(got) != 0 {
		t.Fatalf("no playback expected, got %v", got)
	}
}

func TestSingleFilePlaysOnce(t *testing.T) {
	f := newFixture(t, 30*time.Second, Options{Serialize: true})
	writeTracks(t, f.root, "bell.mp3")
	bus := f.runner.bus
	finished := bus.Subscribe(events.EventSessionFinished)

	sched := models.Schedule{ID: "s1", Kind: models.ScheduleKindSingle, Time: "14:30", Wednesday: true, Filename: "bell.mp3"}
	if err := f.runner.Launch(context.Background(), sched); err != nil {
		t.Fatal(err)
	}
	if got := f.backend.played(); !equalStrings(got, []string{"bell.mp3"}) {
		t.Fatalf("unexpected plays %v", got)
	}
	if f.backend.Busy() {
		t.Fatal("session returned while the track was still playing")
	}

	select {
	case p := <-finished:
		if p["schedule_id"] != "s1" || p["tracks_played"] != 1 {
			t.Fatalf("unexpected finish payload %#v", p)
		}
	default:
		t.Fatal("session.finished not published")
	}
}

func TestSerializedSessionWaitsForDevice(t *testing.T) {
	f := newFixture(t, 10*time.Second, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3")

	// Another session holds the device for the whole budget.
	if !f.runner.lease.tryAcquire() {
		t.Fatal("lease should start free")
	}
	if err := f.runner.Launch(context.Background(), playlist("p", 1, 0, nil, false)); err != nil {
		t.Fatal(err)
	}
	if got := f.backend.played(); len(got) != 0 {
		t.Fatalf("session played while the device was leased: %v", got)
	}
	if got := f.clk.Now(); !got.Equal(sessionStart.Add(time.Minute)) {
		t.Fatalf("lease wait ended at %s, want the session deadline", got)
	}
}

func TestUnserializedLastCallWins(t *testing.T) {
	f := newFixture(t, 10*time.Second, Options{Serialize: false})
	writeTracks(t, f.root, "bell.mp3")

	// Something else is already playing.
	if err := f.backend.Play(filepath.Join(f.root, "other.mp3")); err != nil {
		t.Fatal(err)
	}
	sched := models.Schedule{ID: "s1", Kind: models.ScheduleKindSingle, Filename: "bell.mp3"}
	if err := f.runner.Launch(context.Background(), sched); err != nil {
		t.Fatal(err)
	}
	if f.backend.preempted != 1 {
		t.Fatalf("expected the running track to be preempted, got %d", f.backend.preempted)
	}
	if filepath.Base(f.backend.current) != "bell.mp3" {
		t.Fatalf("last call should own the device, got %s", f.backend.current)
	}
}

func TestReplacedTrackIsNotStoppedAtDeadline(t *testing.T) {
	f := newFixture(t, 10*time.Minute, Options{Serialize: false})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3")
	f.backend.onBusy = func() {
		f.backend.takeOver("other-session.mp3", time.Hour)
	}

	if err := f.runner.Launch(context.Background(), playlist("p", 1, 0, intPtr(1), false)); err != nil {
		t.Fatal(err)
	}

	if got := f.backend.played(); !equalStrings(got, []string{"a.mp3", "other-session.mp3"}) {
		t.Fatalf("unexpected plays %v", got)
	}
	if f.backend.stops != 0 {
		t.Fatalf("a replaced session stopped the newer track %d times", f.backend.stops)
	}
	if got := f.backend.Current(); got != "other-session.mp3" {
		t.Fatalf("current = %q, want other-session.mp3", got)
	}
	if got := f.clk.Now(); !got.Before(sessionStart.Add(time.Minute)) {
		t.Fatalf("replaced session waited until %s instead of returning", got)
	}
}

func TestReplacedBySameRunnerIsNotStopped(t *testing.T) {
	f := newFixture(t, 10*time.Minute, Options{Serialize: false})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3")
	path := filepath.Join(f.root, "p", "a.mp3")
	f.backend.onBusy = func() {
		// A second session of this runner starts the same file.
		if _, err := f.runner.startTrack(path); err != nil {
			t.Error(err)
		}
	}

	if err := f.runner.Launch(context.Background(), playlist("p", 1, 0, intPtr(1), false)); err != nil {
		t.Fatal(err)
	}

	if f.backend.stops != 0 {
		t.Fatalf("older session stopped the newer play %d times", f.backend.stops)
	}
	if !f.backend.Busy() {
		t.Fatal("newer play should still be running")
	}
}

func TestFailingTracksArePaced(t *testing.T) {
	f := newFixture(t, 10*time.Second, Options{Serialize: false})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3", "b.mp3")
	f.backend.fail["a.mp3"] = true
	f.backend.fail["b.mp3"] = true

	if err := f.runner.Launch(context.Background(), playlist("p", 1, 0, nil, false)); err != nil {
		t.Fatal(err)
	}

	plays := f.backend.plays
	if len(plays) == 0 || len(plays) > 60 {
		t.Fatalf("expected at most one attempt per poll, got %d", len(plays))
	}
	for i := 1; i < len(plays); i++ {
		if gap := plays[i].at.Sub(plays[i-1].at); gap < time.Second {
			t.Fatalf("attempt %d followed the previous one after %v", i, gap)
		}
	}
	if got := f.clk.Now(); got.Before(sessionStart.Add(time.Minute)) {
		t.Fatalf("session ended at %s before its deadline", got)
	}
}

func TestConcurrentSessionsNeverOverlap(t *testing.T) {
	root := t.TempDir()
	writeTracks(t, filepath.Join(root, "p"), "a.mp3", "b.mp3")
	clk := clock.NewFake(sessionStart)
	backend := newFakeBackend(clk, 10*time.Second)
	pool := executor.NewPool(context.Background(), nil, zerolog.Nop())
	runner := NewRunner(backend, media.NewLibrary(root, zerolog.Nop()), pool, clk, nil,
		Options{Serialize: true, BusyPoll: time.Second, Rand: rand.New(rand.NewSource(1))}, zerolog.Nop())

	for _, id := range []string{"x", "y"} {
		sched := playlist("p", 60, 0, intPtr(3), false)
		sched.ID = id
		if err := runner.Launch(context.Background(), sched); err != nil {
			t.Fatal(err)
		}
	}
	pool.Wait()

	if got := len(backend.played()); got != 6 {
		t.Fatalf("expected 6 plays across both sessions, got %d", got)
	}
	if backend.preempted != 0 {
		t.Fatalf("serialized sessions drove the device concurrently %d times", backend.preempted)
	}
}

func TestPlaylistStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Hour, Options{Serialize: true})
	writeTracks(t, filepath.Join(f.root, "p"), "a.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.runner.dispatcher = executor.Inline{Ctx: ctx}

	if err := f.runner.Launch(context.Background(), playlist("p", 120, 0, nil, false)); err != nil {
		t.Fatal(err)
	}
	if len(f.backend.played()) > 1 {
		t.Fatalf("cancelled session kept playing: %v", f.backend.played())
	}
	if f.backend.Busy() {
		t.Fatal("backend left playing after cancellation")
	}
}
