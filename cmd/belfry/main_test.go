/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/store"
)

func TestNextRunLabel(t *testing.T) {
	now := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		name  string
		sched models.Schedule
		want  string
	}{
		{"later today", models.Schedule{Time: "15:00", Wednesday: true}, "Wed 2026-03-04 15:00"},
		{"next week", models.Schedule{Time: "14:30", Wednesday: true}, "Wed 2026-03-11 14:30"},
		{"no days", models.Schedule{Time: "15:00"}, "never"},
		{"muted", models.Schedule{Time: "15:00", Wednesday: true, IsMuted: true}, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextRunLabel(&tt.sched, now); got != tt.want {
				t.Fatalf("nextRunLabel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListError(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", store.ErrNotFound)

	if err := listError(wrapped, ""); !strings.Contains(err.Error(), "no active list") {
		t.Fatalf("unexpected message %q", err)
	}
	if err := listError(wrapped, "abc"); err.Error() != "list abc not found" {
		t.Fatalf("unexpected message %q", err)
	}
	other := errors.New("disk full")
	if err := listError(other, ""); err != other {
		t.Fatalf("unrelated errors should pass through, got %v", err)
	}
}
