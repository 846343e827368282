/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists schedule lists and schedules.
package store

import (
	"context"
	"errors"

	"github.com/friendsincode/belfry/internal/models"
)

var (
	// ErrNotFound is returned when a list or schedule does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSchedule is returned when a schedule fails validation.
	ErrInvalidSchedule = models.ErrInvalidSchedule
)

// ScheduleFilter narrows ListSchedules.
type ScheduleFilter struct {
	ExcludeMuted bool
}

// Store is the read path the scheduler loop depends on.
type Store interface {
	// GetActiveList returns the active list, or nil and no error when no list
	// is active. When several are active the oldest wins.
	GetActiveList(ctx context.Context) (*models.ScheduleList, error)
	CreateList(ctx context.Context, name string, active bool) (*models.ScheduleList, error)
	ListSchedules(ctx context.Context, listID string, filter ScheduleFilter) ([]models.Schedule, error)
}
