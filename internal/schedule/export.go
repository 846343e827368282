/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule imports and exports schedule definitions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/belfry/internal/media"
	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/store"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for export formats other than csv and yaml.
var ErrUnknownFormat = errors.New("unknown export format")

// ListStore is the part of the schedule store import and export use.
type ListStore interface {
	GetActiveList(ctx context.Context) (*models.ScheduleList, error)
	GetList(ctx context.Context, id string) (*models.ScheduleList, error)
	ListSchedules(ctx context.Context, listID string, filter store.ScheduleFilter) ([]models.Schedule, error)
	ReplaceSchedules(ctx context.Context, listID string, schedules []models.Schedule, replace bool) error
}

// ExportService handles schedule import/export.
type ExportService struct {
	store   ListStore
	library *media.Library
	logger  zerolog.Logger
}

// NewExportService creates a new export service. With a library, imported
// targets must exist in it.
func NewExportService(st ListStore, library *media.Library, logger zerolog.Logger) *ExportService {
	return &ExportService{
		store:   st,
		library: library,
		logger:  logger.With().Str("component", "schedule_export").Logger(),
	}
}

// ImportResult summarises an import.
type ImportResult struct {
	ListID   string
	Imported int
	Replaced bool
}

// Import parses CSV data into listID (the active list when empty). Nothing
// is stored unless every row is valid.
func (s *ExportService) Import(ctx context.Context, listID string, data io.Reader, replace bool) (*ImportResult, error) {
	list, err := s.resolveList(ctx, listID)
	if err != nil {
		return nil, err
	}

	schedules, err := ParseCSV(data)
	if err != nil {
		return nil, err
	}
	if s.library != nil {
		for i := range schedules {
			if err := s.checkTarget(&schedules[i]); err != nil {
				return nil, fmt.Errorf("schedule %d (%s): %w", i+1, schedules[i].Time, err)
			}
		}
	}

	if err := s.store.ReplaceSchedules(ctx, list.ID, schedules, replace); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("list_id", list.ID).
		Int("imported", len(schedules)).
		Bool("replace", replace).
		Msg("schedules imported")

	return &ImportResult{ListID: list.ID, Imported: len(schedules), Replaced: replace}, nil
}

// Export writes every schedule of listID (the active list when empty).
func (s *ExportService) Export(ctx context.Context, listID, format string, w io.Writer) error {
	list, err := s.resolveList(ctx, listID)
	if err != nil {
		return err
	}
	schedules, err := s.store.ListSchedules(ctx, list.ID, store.ScheduleFilter{})
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", FormatCSV:
		return WriteCSV(w, schedules)
	case FormatYAML, "yml":
		return WriteYAML(w, list, schedules)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

type yamlDocument struct {
	List      string         `yaml:"list"`
	Active    bool           `yaml:"active"`
	Schedules []yamlSchedule `yaml:"schedules"`
}

type yamlSchedule struct {
	Time             string   `yaml:"time"`
	Days             []string `yaml:"days,flow"`
	Type             string   `yaml:"type"`
	Filename         string   `yaml:"filename,omitempty"`
	FolderPath       string   `yaml:"folder_path,omitempty"`
	PlaylistDuration *int     `yaml:"playlist_duration,omitempty"`
	TrackInterval    *int     `yaml:"track_interval,omitempty"`
	MaxTracks        *int     `yaml:"max_tracks,omitempty"`
	Shuffle          bool     `yaml:"shuffle,omitempty"`
	Muted            bool     `yaml:"muted,omitempty"`
}

// WriteYAML writes a list and its schedules as a YAML document.
func WriteYAML(w io.Writer, list *models.ScheduleList, schedules []models.Schedule) error {
	doc := yamlDocument{
		List:      list.Name,
		Active:    list.IsActive,
		Schedules: make([]yamlSchedule, 0, len(schedules)),
	}
	for i := range schedules {
		sched := &schedules[i]
		days := make([]string, 0, 7)
		for _, d := range sched.Days() {
			days = append(days, models.WeekdayNames[d])
		}
		doc.Schedules = append(doc.Schedules, yamlSchedule{
			Time:             sched.Time,
			Days:             days,
			Type:             string(sched.Kind),
			Filename:         sched.Filename,
			FolderPath:       sched.FolderPath,
			PlaylistDuration: sched.PlaylistDuration,
			TrackInterval:    sched.TrackInterval,
			MaxTracks:        sched.MaxTracks,
			Shuffle:          sched.ShuffleMode,
			Muted:            sched.IsMuted,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func (s *ExportService) resolveList(ctx context.Context, listID string) (*models.ScheduleList, error) {
	if listID != "" {
		return s.store.GetList(ctx, listID)
	}
	list, err := s.store.GetActiveList(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("no active schedule list: %w", store.ErrNotFound)
	}
	return list, nil
}

func (s *ExportService) checkTarget(sched *models.Schedule) error {
	switch sched.Kind {
	case models.ScheduleKindPlaylist:
		_, err := s.library.Tracks(sched.FolderPath)
		return err
	default:
		_, err := s.library.ResolveFile(sched.Filename)
		return err
	}
}
