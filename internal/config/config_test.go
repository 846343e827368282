/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.DBBackend)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected 1s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.ErrorBackoff != 5*time.Second {
		t.Fatalf("expected 5s error backoff, got %v", cfg.ErrorBackoff)
	}
	if cfg.MaxConsecutiveFailures != 5 {
		t.Fatalf("expected 5 consecutive failures, got %d", cfg.MaxConsecutiveFailures)
	}
	if cfg.StopTimeout != 5*time.Second {
		t.Fatalf("expected 5s stop timeout, got %v", cfg.StopTimeout)
	}
	if cfg.DefaultListName != "Default" {
		t.Fatalf("unexpected default list name: %q", cfg.DefaultListName)
	}
	if !cfg.AudioSerialize {
		t.Fatal("expected serialized audio by default")
	}
	if len(cfg.PlayerArgs) == 0 {
		t.Fatal("expected default player args")
	}
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("BELFRY_DB_BACKEND", "postgres")
	t.Setenv("BELFRY_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("BELFRY_POLL_INTERVAL_MS", "250")
	t.Setenv("BELFRY_PLAYER_ARGS", "-q  --no-video")
	t.Setenv("BELFRY_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabasePostgres {
		t.Fatalf("unexpected backend: %q", cfg.DBBackend)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if len(cfg.PlayerArgs) != 2 || cfg.PlayerArgs[1] != "--no-video" {
		t.Fatalf("unexpected player args: %#v", cfg.PlayerArgs)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected location: %v", cfg.Location())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown backend", "BELFRY_DB_BACKEND", "oracle"},
		{"zero poll interval", "BELFRY_POLL_INTERVAL_MS", "0"},
		{"poll interval above a minute", "BELFRY_POLL_INTERVAL_MS", "61000"},
		{"negative failure budget", "BELFRY_MAX_CONSECUTIVE_FAILURES", "-1"},
		{"bad timezone", "BELFRY_TIMEZONE", "Mars/Olympus_Mons"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("AUDIO_SCHEDULER_UPLOAD_FOLDER", "/srv/uploads")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MediaRoot != "/srv/uploads" {
		t.Fatalf("legacy key should still be honoured, got %q", cfg.MediaRoot)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}
