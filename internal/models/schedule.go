/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleKind distinguishes single-file schedules from folder playlists.
type ScheduleKind string

const (
	ScheduleKindSingle   ScheduleKind = "single"
	ScheduleKindPlaylist ScheduleKind = "playlist"
)

// Playlist defaults applied when a schedule leaves the field empty.
const (
	DefaultPlaylistDurationMinutes = 60
	DefaultTrackIntervalSeconds    = 10
)

// ErrInvalidSchedule wraps every schedule validation failure.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleList is a named, swappable collection of schedules. Only one list
// is evaluated by the scheduler at a time.
type ScheduleList struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(100);not null" json:"name"`
	IsActive  bool       `gorm:"index;default:false" json:"is_active"`
	Schedules []Schedule `gorm:"foreignKey:ScheduleListID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (ScheduleList) TableName() string { return "schedule_list" }

// BeforeCreate assigns an id when the caller did not.
func (l *ScheduleList) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Schedule is a persisted rule: time of day, weekday set, target and
// playback modifiers.
type Schedule struct {
	ID             string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	ScheduleListID string       `gorm:"type:varchar(36);index;not null" json:"schedule_list_id"`
	Kind           ScheduleKind `gorm:"column:schedule_type;type:varchar(20);default:single" json:"schedule_type"`
	Time           string       `gorm:"type:varchar(5);not null" json:"time"` // "HH:MM"

	Monday    bool `gorm:"default:false" json:"monday"`
	Tuesday   bool `gorm:"default:false" json:"tuesday"`
	Wednesday bool `gorm:"default:false" json:"wednesday"`
	Thursday  bool `gorm:"default:false" json:"thursday"`
	Friday    bool `gorm:"default:false" json:"friday"`
	Saturday  bool `gorm:"default:false" json:"saturday"`
	Sunday    bool `gorm:"default:false" json:"sunday"`

	IsMuted bool `gorm:"index;default:false" json:"is_muted"`

	// Single-file target.
	Filename string `gorm:"type:varchar(255)" json:"filename,omitempty"`

	// Playlist target and modifiers.
	FolderPath       string `gorm:"type:varchar(500)" json:"folder_path,omitempty"`
	PlaylistDuration *int   `json:"playlist_duration,omitempty"` // minutes
	TrackInterval    *int   `json:"track_interval,omitempty"`    // seconds
	MaxTracks        *int   `json:"max_tracks,omitempty"`
	ShuffleMode      bool   `gorm:"default:false" json:"shuffle_mode"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Schedule) TableName() string { return "schedule" }

// BeforeCreate assigns an id when the caller did not.
func (s *Schedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// WeekdayIndex maps a time to 0=Monday..6=Sunday.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekdayNames are the short names used by import/export, indexed 0=Monday.
var WeekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Weekdays returns the day flags indexed 0=Monday..6=Sunday.
func (s *Schedule) Weekdays() [7]bool {
	return [7]bool{s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday, s.Saturday, s.Sunday}
}

// Days returns the indices of the enabled weekdays.
func (s *Schedule) Days() []int {
	days := make([]int, 0, 7)
	for i, on := range s.Weekdays() {
		if on {
			days = append(days, i)
		}
	}
	return days
}

// SetDays replaces the weekday flags. Indices outside 0..6 are ignored.
func (s *Schedule) SetDays(days []int) {
	var flags [7]bool
	for _, d := range days {
		if d >= 0 && d < 7 {
			flags[d] = true
		}
	}
	s.Monday, s.Tuesday, s.Wednesday, s.Thursday = flags[0], flags[1], flags[2], flags[3]
	s.Friday, s.Saturday, s.Sunday = flags[4], flags[5], flags[6]
}

// ParseTimeOfDay parses "H:MM" or "HH:MM" into hour and minute.
func ParseTimeOfDay(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour out of range in %q", ErrInvalidSchedule, value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute out of range in %q", ErrInvalidSchedule, value)
	}
	return hour, minute, nil
}

// NormalizeTime returns the canonical "HH:MM" form of value.
func NormalizeTime(value string) (string, error) {
	hour, minute, err := ParseTimeOfDay(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// MatchesAt reports whether the schedule fires in the minute containing t.
// The comparison is an exact "HH:MM" match, not a range.
func (s *Schedule) MatchesAt(t time.Time) bool {
	if !s.Weekdays()[WeekdayIndex(t)] {
		return false
	}
	return s.Time == t.Format("15:04")
}

// NextRun returns the next fire instant strictly after now, in now's
// location. The zero time means the schedule never fires.
func (s *Schedule) NextRun(now time.Time) time.Time {
	hour, minute, err := ParseTimeOfDay(s.Time)
	if err != nil {
		return time.Time{}
	}
	days := s.Weekdays()
	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
		if !candidate.After(now) {
			continue
		}
		if days[WeekdayIndex(candidate)] {
			return candidate
		}
	}
	return time.Time{}
}

// EffectiveDuration is the playlist time budget; nil or non-positive
// values fall back to the default.
func (s *Schedule) EffectiveDuration() time.Duration {
	minutes := DefaultPlaylistDurationMinutes
	if s.PlaylistDuration != nil && *s.PlaylistDuration > 0 {
		minutes = *s.PlaylistDuration
	}
	return time.Duration(minutes) * time.Minute
}

// EffectiveInterval is the pause between playlist tracks.
func (s *Schedule) EffectiveInterval() time.Duration {
	seconds := DefaultTrackIntervalSeconds
	if s.TrackInterval != nil {
		seconds = *s.TrackInterval
	}
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds) * time.Second
}

// TrackCap returns the track limit and whether one is set. A cap of zero
// is a real limit: the session plays nothing.
func (s *Schedule) TrackCap() (int, bool) {
	if s.MaxTracks == nil {
		return 0, false
	}
	if *s.MaxTracks < 0 {
		return 0, true
	}
	return *s.MaxTracks, true
}

// Validate checks the fields the scheduler relies on. It normalises Time.
func (s *Schedule) Validate() error {
	if s.Kind == "" {
		s.Kind = ScheduleKindSingle
	}

	normalized, err := NormalizeTime(s.Time)
	if err != nil {
		return err
	}
	s.Time = normalized

	switch s.Kind {
	case ScheduleKindSingle:
		if strings.TrimSpace(s.Filename) == "" {
			return fmt.Errorf("%w: single schedule needs a filename", ErrInvalidSchedule)
		}
	case ScheduleKindPlaylist:
		if strings.TrimSpace(s.FolderPath) == "" {
			return fmt.Errorf("%w: playlist schedule needs a folder path", ErrInvalidSchedule)
		}
		if s.TrackInterval != nil && *s.TrackInterval < 0 {
			return fmt.Errorf("%w: track interval must not be negative", ErrInvalidSchedule)
		}
		if s.MaxTracks != nil && *s.MaxTracks < 0 {
			return fmt.Errorf("%w: max tracks must not be negative", ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// Target returns the file or folder the schedule plays.
func (s *Schedule) Target() string {
	if s.Kind == ScheduleKindPlaylist {
		return s.FolderPath
	}
	return s.Filename
}
