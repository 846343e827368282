/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/friendsincode/belfry/internal/models"
)

// CSV columns in export order. Import matches columns by header name, so
// order does not matter there and only "time" is required.
var csvColumns = []string{
	"time",
	"days",
	"type",
	"filename",
	"folder_path",
	"playlist_duration",
	"track_interval",
	"max_tracks",
	"shuffle",
	"muted",
}

// RowError reports the CSV line a problem was found on.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ParseCSV reads schedule definitions. Every row is validated; the first
// invalid row aborts the parse.
func ParseCSV(r io.Reader) ([]models.Schedule, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV", models.ErrInvalidSchedule)
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index["time"]; !ok {
		return nil, fmt.Errorf("%w: CSV header has no time column", models.ErrInvalidSchedule)
	}

	var schedules []models.Schedule
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		if blankRecord(record) {
			continue
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		sched, err := parseRow(field)
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		schedules = append(schedules, sched)
	}
	return schedules, nil
}

func parseRow(field func(string) string) (models.Schedule, error) {
	sched := models.Schedule{
		Kind:       models.ScheduleKind(strings.ToLower(field("type"))),
		Time:       field("time"),
		Filename:   field("filename"),
		FolderPath: field("folder_path"),
	}

	days, err := ParseDays(field("days"))
	if err != nil {
		return sched, err
	}
	sched.SetDays(days)

	if sched.PlaylistDuration, err = parseOptionalInt("playlist_duration", field("playlist_duration")); err != nil {
		return sched, err
	}
	if sched.TrackInterval, err = parseOptionalInt("track_interval", field("track_interval")); err != nil {
		return sched, err
	}
	if sched.MaxTracks, err = parseOptionalInt("max_tracks", field("max_tracks")); err != nil {
		return sched, err
	}
	if sched.ShuffleMode, err = parseBool("shuffle", field("shuffle")); err != nil {
		return sched, err
	}
	if sched.IsMuted, err = parseBool("muted", field("muted")); err != nil {
		return sched, err
	}

	if err := sched.Validate(); err != nil {
		return sched, err
	}
	return sched, nil
}

// WriteCSV writes schedules with a header row.
func WriteCSV(w io.Writer, schedules []models.Schedule) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return err
	}
	for i := range schedules {
		s := &schedules[i]
		record := []string{
			s.Time,
			FormatDays(s.Days()),
			string(s.Kind),
			s.Filename,
			s.FolderPath,
			formatOptionalInt(s.PlaylistDuration),
			formatOptionalInt(s.TrackInterval),
			formatOptionalInt(s.MaxTracks),
			strconv.FormatBool(s.ShuffleMode),
			strconv.FormatBool(s.IsMuted),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ParseDays accepts weekday names ("Mon", "monday") or indices 0..6
// (0=Monday) separated by spaces, commas, semicolons or pipes.
func ParseDays(value string) ([]int, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '|'
	})

	days := make([]int, 0, len(fields))
	for _, f := range fields {
		day, ok := dayIndex(f)
		if !ok {
			return nil, fmt.Errorf("%w: unknown day %q", models.ErrInvalidSchedule, f)
		}
		days = append(days, day)
	}
	return days, nil
}

// FormatDays renders day indices as space separated short names.
func FormatDays(days []int) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(models.WeekdayNames) {
			names = append(names, models.WeekdayNames[d])
		}
	}
	return strings.Join(names, " ")
}

func dayIndex(token string) (int, bool) {
	if n, err := strconv.Atoi(token); err == nil {
		return n, n >= 0 && n < 7
	}
	lower := strings.ToLower(token)
	for i, name := range models.WeekdayNames {
		short := strings.ToLower(name)
		if lower == short || (len(lower) > 3 && strings.HasPrefix(lower, short) && strings.HasPrefix(fullDayNames[i], lower)) {
			return i, true
		}
	}
	return 0, false
}

var fullDayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func parseOptionalInt(name, value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not a number", models.ErrInvalidSchedule, name, value)
	}
	return &n, nil
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseBool(name, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "", "0", "false", "no", "n", "off":
		return false, nil
	case "1", "true", "yes", "y", "on":
		return true, nil
	}
	return false, fmt.Errorf("%w: %s %q is not a boolean", models.ErrInvalidSchedule, name, value)
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
