/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/belfry/internal/db"
	"github.com/friendsincode/belfry/internal/media"
	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/store"
)

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewGormStore(database, zerolog.Nop())
}

func newLibrary(t *testing.T) *media.Library {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "bell.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "lunch"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "lunch", "song.ogg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return media.NewLibrary(root, zerolog.Nop())
}

const importCSV = "time,days,type,filename,folder_path\n08:00,Mon,single,bell.mp3,\n12:00,Mon Fri,playlist,,lunch\n"

func TestImportIntoActiveList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	list, _ := st.CreateList(ctx, "Main", true)
	svc := NewExportService(st, newLibrary(t), zerolog.Nop())

	res, err := svc.Import(ctx, "", strings.NewReader(importCSV), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.ListID != list.ID || res.Imported != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	// Importing again without replace appends.
	if _, err := svc.Import(ctx, list.ID, strings.NewReader(importCSV), false); err != nil {
		t.Fatal(err)
	}
	all, _ := st.ListSchedules(ctx, list.ID, store.ScheduleFilter{})
	if len(all) != 4 {
		t.Fatalf("expected 4 schedules, got %d", len(all))
	}

	if _, err := svc.Import(ctx, list.ID, strings.NewReader(importCSV), true); err != nil {
		t.Fatal(err)
	}
	all, _ = st.ListSchedules(ctx, list.ID, store.ScheduleFilter{})
	if len(all) != 2 {
		t.Fatalf("replace should leave 2 schedules, got %d", len(all))
	}
}

func TestImportRejectsMissingTargets(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	list, _ := st.CreateList(ctx, "Main", true)
	svc := NewExportService(st, newLibrary(t), zerolog.Nop())

	tests := []struct {
		name string
		csv  string
		want error
	}{
		{"missing file", "time,filename\n08:00,bell.mp3\n09:00,gone.mp3\n", media.ErrNotFound},
		{"missing folder", "time,type,folder_path\n08:00,playlist,nowhere\n", media.ErrNotFound},
		{"folder is a file", "time,type,folder_path\n08:00,playlist,bell.mp3\n", media.ErrNotDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(ctx, list.ID, strings.NewReader(tt.csv), false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	all, _ := st.ListSchedules(ctx, list.ID, store.ScheduleFilter{})
	if len(all) != 0 {
		t.Fatalf("failed imports must store nothing, found %d", len(all))
	}
}

func TestImportWithoutActiveList(t *testing.T) {
	svc := NewExportService(newTestStore(t), nil, zerolog.Nop())
	_, err := svc.Import(context.Background(), "", strings.NewReader(importCSV), false)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExportFormats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	list, _ := st.CreateList(ctx, "Term", true)
	svc := NewExportService(st, nil, zerolog.Nop())
	if _, err := svc.Import(ctx, list.ID, strings.NewReader(importCSV), false); err != nil {
		t.Fatal(err)
	}

	var csvOut bytes.Buffer
	if err := svc.Export(ctx, "", FormatCSV, &csvOut); err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseCSV(&csvOut)
	if err != nil || len(parsed) != 2 {
		t.Fatalf("csv export did not parse back: %v, %d", err, len(parsed))
	}

	var yamlOut bytes.Buffer
	if err := svc.Export(ctx, list.ID, FormatYAML, &yamlOut); err != nil {
		t.Fatal(err)
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(yamlOut.Bytes(), &doc); err != nil {
		t.Fatalf("yaml export: %v", err)
	}
	if doc.List != "Term" || !doc.Active || len(doc.Schedules) != 2 {
		t.Fatalf("unexpected yaml document %+v", doc)
	}
	if doc.Schedules[1].Type != string(models.ScheduleKindPlaylist) || len(doc.Schedules[1].Days) != 2 {
		t.Fatalf("unexpected playlist entry %+v", doc.Schedules[1])
	}

	if err := svc.Export(ctx, "", "xml", &bytes.Buffer{}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
