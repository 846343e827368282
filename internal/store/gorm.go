/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/telemetry"
)

// GormStore implements Store and the list/schedule management used by the CLI
// and importer.
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewGormStore creates a store backed by db.
func NewGormStore(db *gorm.DB, logger zerolog.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// GetActiveList returns the oldest active list or nil when none is active.
func (s *GormStore) GetActiveList(ctx context.Context) (*models.ScheduleList, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerStore, "store.get_active_list")
	defer span.End()

	var list models.ScheduleList
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC, id ASC").
		First(&list).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("query active schedule list: %w", err)
	}
	return &list, nil
}

// CreateList creates a list. An active list deactivates every other list in
// the same transaction.
func (s *GormStore) CreateList(ctx context.Context, name string, active bool) (*models.ScheduleList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("schedule list name must not be empty")
	}

	list := models.ScheduleList{Name: name, IsActive: active}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if active {
			if err := deactivateAll(tx); err != nil {
				return err
			}
		}
		return tx.Create(&list).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create schedule list: %w", err)
	}

	s.logger.Info().Str("list_id", list.ID).Str("name", name).Bool("active", active).Msg("schedule list created")
	return &list, nil
}

// ListSchedules returns the schedules of a list ordered by time of day.
func (s *GormStore) ListSchedules(ctx context.Context, listID string, filter ScheduleFilter) ([]models.Schedule, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerStore, "store.list_schedules")
	defer span.End()

	query := s.db.WithContext(ctx).Where("schedule_list_id = ?", listID)
	if filter.ExcludeMuted {
		query = query.Where("is_muted = ?", false)
	}

	var schedules []models.Schedule
	if err := query.Order("time ASC, created_at ASC").Find(&schedules).Error; err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// ListLists returns every list, oldest first.
func (s *GormStore) ListLists(ctx context.Context) ([]models.ScheduleList, error) {
	var lists []models.ScheduleList
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&lists).Error; err != nil {
		return nil, fmt.Errorf("list schedule lists: %w", err)
	}
	return lists, nil
}

// GetList returns a list by id.
func (s *GormStore) GetList(ctx context.Context, id string) (*models.ScheduleList, error) {
	var list models.ScheduleList
	err := s.db.WithContext(ctx).First(&list, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule list: %w", err)
	}
	return &list, nil
}

// ActivateList makes id the only active list.
func (s *GormStore) ActivateList(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var list models.ScheduleList
		if err := tx.First(&list, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := deactivateAll(tx); err != nil {
			return err
		}
		return tx.Model(&list).Update("is_active", true).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("activate schedule list: %w", err)
	}

	s.logger.Info().Str("list_id", id).Msg("schedule list activated")
	return nil
}

// DeleteList removes a list and its schedules. Deleting the active list
// activates the oldest remaining one.
func (s *GormStore) DeleteList(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var list models.ScheduleList
		if err := tx.First(&list, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Where("schedule_list_id = ?", id).Delete(&models.Schedule{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&list).Error; err != nil {
			return err
		}

		if !list.IsActive {
			return nil
		}
		var next models.ScheduleList
		err := tx.Order("created_at ASC, id ASC").First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_active", true).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete schedule list: %w", err)
	}

	s.logger.Info().Str("list_id", id).Msg("schedule list deleted")
	return nil
}

// GetSchedule returns a schedule by id.
func (s *GormStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).First(&schedule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &schedule, nil
}

// CreateSchedule validates and stores a schedule in an existing list.
func (s *GormStore) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if _, err := s.GetList(ctx, schedule.ScheduleListID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(schedule).Error; err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// UpdateSchedule validates and saves every field of schedule.
func (s *GormStore) UpdateSchedule(ctx context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if _, err := s.GetSchedule(ctx, schedule.ID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(schedule).Error; err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule.
func (s *GormStore) DeleteSchedule(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.Schedule{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMuted mutes or unmutes a schedule.
func (s *GormStore) SetMuted(ctx context.Context, id string, muted bool) error {
	result := s.db.WithContext(ctx).Model(&models.Schedule{}).Where("id = ?", id).Update("is_muted", muted)
	if result.Error != nil {
		return fmt.Errorf("set schedule muted: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Info().Str("schedule_id", id).Bool("muted", muted).Msg("schedule mute changed")
	return nil
}

// ReplaceSchedules stores schedules in listID. With replace set the list's
// existing schedules are removed first. Either every schedule is stored or
// none is.
func (s *GormStore) ReplaceSchedules(ctx context.Context, listID string, schedules []models.Schedule, replace bool) error {
	for i := range schedules {
		schedules[i].ScheduleListID = listID
		if err := schedules[i].Validate(); err != nil {
			return fmt.Errorf("schedule %d: %w", i+1, err)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ScheduleList{}).Where("id = ?", listID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if replace {
			if err := tx.Where("schedule_list_id = ?", listID).Delete(&models.Schedule{}).Error; err != nil {
				return err
			}
		}
		if len(schedules) == 0 {
			return nil
		}
		return tx.Create(&schedules).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("store schedules: %w", err)
	}
	return nil
}

func deactivateAll(tx *gorm.DB) error {
	return tx.Model(&models.ScheduleList{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}
