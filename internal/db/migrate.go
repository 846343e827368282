/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"fmt"

	"github.com/friendsincode/belfry/internal/models"
	"gorm.io/gorm"
)

// DefaultListName names the list that adopts schedules created before
// schedule lists existed.
const DefaultListName = "Default"

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.ScheduleList{},
		&models.Schedule{},
	); err != nil {
		return err
	}

	if err := adoptOrphanSchedules(database); err != nil {
		return err
	}
	if err := backfillScheduleKind(database); err != nil {
		return err
	}
	if err := normalizeScheduleTimes(database); err != nil {
		return err
	}
	if err := collapseActiveLists(database); err != nil {
		return err
	}
	if err := applySingleActiveListGuard(database); err != nil {
		return err
	}

	return nil
}

// adoptOrphanSchedules moves schedules without a list into the first list,
// creating an active default list when none exists.
func adoptOrphanSchedules(database *gorm.DB) error {
	var orphans int64
	if err := database.Model(&models.Schedule{}).
		Where("schedule_list_id IS NULL OR schedule_list_id = ''").
		Count(&orphans).Error; err != nil {
		return fmt.Errorf("count orphan schedules: %w", err)
	}
	if orphans == 0 {
		return nil
	}

	return database.Transaction(func(tx *gorm.DB) error {
		var list models.ScheduleList
		err := tx.Order("created_at ASC, id ASC").First(&list).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			list = models.ScheduleList{Name: DefaultListName, IsActive: true}
			err = tx.Create(&list).Error
		}
		if err != nil {
			return fmt.Errorf("resolve default schedule list: %w", err)
		}

		if err := tx.Model(&models.Schedule{}).
			Where("schedule_list_id IS NULL OR schedule_list_id = ''").
			Update("schedule_list_id", list.ID).Error; err != nil {
			return fmt.Errorf("adopt orphan schedules: %w", err)
		}
		return nil
	})
}

// backfillScheduleKind marks rows from before playlist support as single-file schedules.
func backfillScheduleKind(database *gorm.DB) error {
	return database.Model(&models.Schedule{}).
		Where("schedule_type IS NULL OR schedule_type = ''").
		Update("schedule_type", string(models.ScheduleKindSingle)).Error
}

// normalizeScheduleTimes rewrites "H:MM" times to "HH:MM" so the exact minute
// comparison matches them.
func normalizeScheduleTimes(database *gorm.DB) error {
	type row struct {
		ID   string
		Time string
	}
	var rows []row
	if err := database.Model(&models.Schedule{}).
		Select("id, time").
		Where("LENGTH(time) < 5").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("normalize schedule times query: %w", err)
	}

	for _, r := range rows {
		normalized, err := models.NormalizeTime(r.Time)
		if err != nil || normalized == r.Time {
			continue
		}
		if err := database.Model(&models.Schedule{}).
			Where("id = ?", r.ID).
			Update("time", normalized).Error; err != nil {
			return fmt.Errorf("normalize schedule %s time: %w", r.ID, err)
		}
	}
	return nil
}

// collapseActiveLists keeps only the first active list active.
func collapseActiveLists(database *gorm.DB) error {
	var active []models.ScheduleList
	if err := database.Where("is_active = ?", true).
		Order("created_at ASC, id ASC").
		Find(&active).Error; err != nil {
		return fmt.Errorf("load active schedule lists: %w", err)
	}
	if len(active) <= 1 {
		return nil
	}

	ids := make([]string, 0, len(active)-1)
	for _, l := range active[1:] {
		ids = append(ids, l.ID)
	}
	if err := database.Model(&models.ScheduleList{}).
		Where("id IN ?", ids).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate extra schedule lists: %w", err)
	}
	return nil
}

// applySingleActiveListGuard adds a partial unique index so at most one list
// can be active. MySQL has no partial indexes; the store enforces it there.
func applySingleActiveListGuard(database *gorm.DB) error {
	switch database.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		return nil
	}

	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS idx_schedule_list_single_active
ON schedule_list (is_active) WHERE is_active`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply single active list guard: %w", err)
	}
	return nil
}
