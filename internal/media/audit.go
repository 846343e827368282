/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/friendsincode/belfry/internal/models"
)

// Problem is a schedule whose target cannot be played.
type Problem struct {
	ScheduleID string
	Time       string
	Target     string
	Err        error
}

// AuditReport compares schedules against the files in the library.
type AuditReport struct {
	Broken   []Problem
	Unused   []string // audio files no schedule plays, relative to the root
	Scanned  int
	Duration time.Duration
}

// Audit checks every schedule target and lists audio files that no
// schedule references. Playlist folders count every file inside them as
// referenced.
func (l *Library) Audit(ctx context.Context, schedules []models.Schedule) (*AuditReport, error) {
	start := time.Now()
	report := &AuditReport{}

	referencedFiles := make(map[string]struct{})
	referencedDirs := make(map[string]struct{})

	for _, s := range schedules {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch s.Kind {
		case models.ScheduleKindPlaylist:
			dir := l.Path(s.FolderPath)
			referencedDirs[filepath.Clean(dir)] = struct{}{}
			if _, err := l.Tracks(s.FolderPath); err != nil {
				report.Broken = append(report.Broken, Problem{ScheduleID: s.ID, Time: s.Time, Target: s.FolderPath, Err: err})
			}
		default:
			path, err := l.ResolveFile(s.Filename)
			if err != nil {
				report.Broken = append(report.Broken, Problem{ScheduleID: s.ID, Time: s.Time, Target: s.Filename, Err: err})
				continue
			}
			referencedFiles[filepath.Clean(path)] = struct{}{}
		}
	}

	files, err := l.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	report.Scanned = len(files)

	for _, rel := range files {
		full := filepath.Clean(filepath.Join(l.root, filepath.FromSlash(rel)))
		if _, ok := referencedFiles[full]; ok {
			continue
		}
		if _, ok := referencedDirs[filepath.Dir(full)]; ok {
			continue
		}
		report.Unused = append(report.Unused, rel)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// String renders a problem for CLI output.
func (p Problem) String() string {
	return fmt.Sprintf("%s %s %s: %s", p.ScheduleID, p.Time, p.Target, strings.TrimSpace(p.Err.Error()))
}
