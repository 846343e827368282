/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestWeekdayIndexStartsMonday(t *testing.T) {
	// 2026-03-02 is a Monday.
	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if got := WeekdayIndex(monday.AddDate(0, 0, i)); got != i {
			t.Fatalf("day %d: expected index %d, got %d", i, i, got)
		}
	}
}

func TestSetDaysRoundTrip(t *testing.T) {
	var s Schedule
	s.SetDays([]int{0, 2, 6, 9, -1})
	if !s.Monday || !s.Wednesday || !s.Sunday || s.Tuesday {
		t.Fatalf("unexpected flags: %+v", s.Weekdays())
	}
	days := s.Days()
	if len(days) != 3 || days[0] != 0 || days[1] != 2 || days[2] != 6 {
		t.Fatalf("unexpected days: %v", days)
	}
}

func TestMatchesAt(t *testing.T) {
	s := Schedule{Time: "08:00", Monday: true}
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday exact minute", time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), true},
		{"monday late in minute", time.Date(2026, 3, 2, 8, 0, 59, 0, time.UTC), true},
		{"monday next minute", time.Date(2026, 3, 2, 8, 1, 0, 0, time.UTC), false},
		{"tuesday same time", time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.MatchesAt(tt.at); got != tt.want {
				t.Fatalf("MatchesAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	never := Schedule{Time: "08:00"}
	if never.MatchesAt(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatal("schedule with no days must never match")
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"8:05", "08:05", false},
		{"23:59", "23:59", false},
		{" 07:30 ", "07:30", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"1230", "", true},
		{"12:5", "", true},
		{"ab:cd", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeTime(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("%q: expected ErrInvalidSchedule, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNextRun(t *testing.T) {
	// Monday 2026-03-02 09:00.
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		s    Schedule
		want time.Time
	}{
		{"later today", Schedule{Time: "10:00", Monday: true}, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		{"passed today rolls to next week", Schedule{Time: "08:00", Monday: true}, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)},
		{"same minute is not next", Schedule{Time: "09:00", Monday: true, Wednesday: true}, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
		{"next enabled day", Schedule{Time: "06:15", Friday: true}, time.Date(2026, 3, 6, 6, 15, 0, 0, time.UTC)},
		{"no days", Schedule{Time: "06:15"}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.NextRun(now); !got.Equal(tt.want) {
				t.Fatalf("NextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlaylistDefaults(t *testing.T) {
	var s Schedule
	if s.EffectiveDuration() != 60*time.Minute {
		t.Fatalf("unexpected default duration %v", s.EffectiveDuration())
	}
	if s.EffectiveInterval() != 10*time.Second {
		t.Fatalf("unexpected default interval %v", s.EffectiveInterval())
	}
	if _, bounded := s.TrackCap(); bounded {
		t.Fatal("nil max tracks must be unbounded")
	}

	s.PlaylistDuration = intPtr(0)
	if s.EffectiveDuration() != 60*time.Minute {
		t.Fatalf("zero duration should fall back to default, got %v", s.EffectiveDuration())
	}
	s.PlaylistDuration = intPtr(-5)
	if s.EffectiveDuration() != 60*time.Minute {
		t.Fatalf("negative duration should fall back to default, got %v", s.EffectiveDuration())
	}
	s.PlaylistDuration = intPtr(15)
	if s.EffectiveDuration() != 15*time.Minute {
		t.Fatalf("unexpected duration %v", s.EffectiveDuration())
	}

	s.TrackInterval = intPtr(0)
	if s.EffectiveInterval() != 0 {
		t.Fatalf("configured zero interval must stay zero, got %v", s.EffectiveInterval())
	}

	s.MaxTracks = intPtr(0)
	if limit, bounded := s.TrackCap(); !bounded || limit != 0 {
		t.Fatalf("zero cap must be a bounded cap of zero, got %d %v", limit, bounded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"single ok", Schedule{Time: "8:00", Filename: "bell.mp3"}, false},
		{"single without file", Schedule{Time: "08:00"}, true},
		{"playlist ok", Schedule{Kind: ScheduleKindPlaylist, Time: "08:00", FolderPath: "morning"}, false},
		{"playlist without folder", Schedule{Kind: ScheduleKindPlaylist, Time: "08:00"}, true},
		{"playlist negative cap", Schedule{Kind: ScheduleKindPlaylist, Time: "08:00", FolderPath: "x", MaxTracks: intPtr(-1)}, true},
		{"unknown kind", Schedule{Kind: "radio", Time: "08:00", Filename: "a.mp3"}, true},
		{"bad time", Schedule{Time: "8am", Filename: "a.mp3"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("expected ErrInvalidSchedule, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	s := Schedule{Time: "8:00", Filename: "bell.mp3"}
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	if s.Time != "08:00" || s.Kind != ScheduleKindSingle {
		t.Fatalf("validate should normalise fields, got time=%q kind=%q", s.Time, s.Kind)
	}
}
