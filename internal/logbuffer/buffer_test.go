/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBufferWrapsOldest(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg})
	}

	all := b.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []string{"b", "c", "d"} {
		if all[i].Message != want {
			t.Fatalf("entry %d = %q, want %q", i, all[i].Message, want)
		}
	}
}

func TestWriterCapturesZerologLines(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b)).With().Timestamp().Logger()

	logger.Info().Str("component", "scheduler").Str("schedule_id", "s1").Msg("schedule fired")
	logger.Warn().Str("component", "playback").Str("path", "/media/Bell.mp3").Msg("track failed")
	logger.Info().Str("component", "playback").Str("schedule_id", "s2").Msg("session finished")

	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{"all", QueryParams{}, []string{"schedule fired", "track failed", "session finished"}},
		{"level", QueryParams{Level: "warn"}, []string{"track failed"}},
		{"component", QueryParams{Component: "playback"}, []string{"track failed", "session finished"}},
		{"schedule", QueryParams{ScheduleID: "s1"}, []string{"schedule fired"}},
		{"search fields", QueryParams{Search: "bell"}, []string{"track failed"}},
		{"newest first with limit", QueryParams{Descending: true, Limit: 2}, []string{"session finished", "track failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Fatalf("entry %d = %q, want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}
}

func TestWriterIgnoresNonJSON(t *testing.T) {
	b := New(2)
	n, err := NewWriter(b).Write([]byte("plain text\n"))
	if err != nil || n != len("plain text\n") {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if b.Len() != 0 {
		t.Fatal("non-JSON line should not be buffered")
	}
}
