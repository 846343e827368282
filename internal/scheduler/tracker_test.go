/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"testing"
	"time"
)

func TestKeyFor(t *testing.T) {
	ts := time.Date(2026, 3, 4, 14, 30, 59, 0, time.UTC)
	key := KeyFor(ts)
	if key != (MinuteKey{2026, time.March, 4, 14, 30}) {
		t.Fatalf("unexpected key %+v", key)
	}
	if key.String() != "2026-03-04 14:30" {
		t.Fatalf("unexpected string %q", key.String())
	}
	if KeyFor(ts.Add(time.Second)) == key {
		t.Fatal("next minute must have a different key")
	}
	if !(MinuteKey{}).IsZero() || key.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestTrackerClearsOnKeyChange(t *testing.T) {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		next    time.Time
		changed bool
		kept    bool
	}{
		{"same minute keeps marks", base.Add(30 * time.Second), false, true},
		{"forward minute clears", base.Add(time.Minute), true, false},
		{"backward jump clears", base.Add(-time.Minute), true, false},
		{"next day same time clears", base.Add(24 * time.Hour), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.Observe(KeyFor(base))
			if !tr.Mark("s1") {
				t.Fatal("first mark should succeed")
			}
			if tr.Mark("s1") {
				t.Fatal("second mark in the same minute should fail")
			}

			if got := tr.Observe(KeyFor(tt.next)); got != tt.changed {
				t.Fatalf("Observe changed = %v, want %v", got, tt.changed)
			}
			if got := tr.Has("s1"); got != tt.kept {
				t.Fatalf("Has after observe = %v, want %v", got, tt.kept)
			}
		})
	}
}
