/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	LogBufferSize int // recent log lines kept for /api/v1/logs
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	MediaRoot     string // uploads folder; relative schedule targets resolve against it

	// Audio backend
	AudioEnabled   bool
	AudioSerialize bool   // one track on the device at a time across sessions
	PlayerBin      string // e.g. ffplay, mpg123, paplay
	PlayerArgs     []string

	// Scheduler loop
	PollInterval           time.Duration
	ErrorBackoff           time.Duration
	MaxConsecutiveFailures int
	StopTimeout            time.Duration
	Timezone               string // IANA name, empty means host local time
	DefaultListName        string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Event fan-out
	NATSURL           string // empty disables forwarding
	NATSSubjectPrefix string
	EventsRedis       bool // publish events on Redis pub/sub when NATS is not configured

	// Central media bucket mirrored into MediaRoot
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
	MediaSyncInterval time.Duration // 0 mirrors once at startup only

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"BELFRY_ENV", "AUDIO_SCHEDULER_ENV"}, "development"),
		LogBufferSize: getEnvIntAny([]string{"BELFRY_LOG_BUFFER_SIZE"}, 2000),
		HTTPBind:      getEnvAny([]string{"BELFRY_HTTP_BIND", "AUDIO_SCHEDULER_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"BELFRY_HTTP_PORT", "AUDIO_SCHEDULER_HTTP_PORT"}, 5000),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"BELFRY_DB_BACKEND", "AUDIO_SCHEDULER_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"BELFRY_DB_DSN", "AUDIO_SCHEDULER_DB_DSN"}, "belfry.db"),
		MediaRoot:     getEnvAny([]string{"BELFRY_MEDIA_ROOT", "AUDIO_SCHEDULER_UPLOAD_FOLDER"}, "./uploads"),

		AudioEnabled:   getEnvBoolAny([]string{"BELFRY_AUDIO_ENABLED"}, true),
		AudioSerialize: getEnvBoolAny([]string{"BELFRY_AUDIO_SERIALIZE"}, true),
		PlayerBin:      getEnvAny([]string{"BELFRY_PLAYER_BIN"}, "ffplay"),
		PlayerArgs:     strings.Fields(getEnvAny([]string{"BELFRY_PLAYER_ARGS"}, "-nodisp -autoexit -loglevel error")),

		PollInterval:           time.Duration(getEnvIntAny([]string{"BELFRY_POLL_INTERVAL_MS"}, 1000)) * time.Millisecond,
		ErrorBackoff:           time.Duration(getEnvIntAny([]string{"BELFRY_ERROR_BACKOFF_MS"}, 5000)) * time.Millisecond,
		MaxConsecutiveFailures: getEnvIntAny([]string{"BELFRY_MAX_CONSECUTIVE_FAILURES"}, 5),
		StopTimeout:            time.Duration(getEnvIntAny([]string{"BELFRY_STOP_TIMEOUT_MS"}, 5000)) * time.Millisecond,
		Timezone:               getEnvAny([]string{"BELFRY_TIMEZONE"}, ""),
		DefaultListName:        getEnvAny([]string{"BELFRY_DEFAULT_LIST_NAME"}, "Default"),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"BELFRY_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"BELFRY_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"BELFRY_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		LeaderElectionEnabled: getEnvBoolAny([]string{"BELFRY_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"BELFRY_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"BELFRY_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"BELFRY_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"BELFRY_INSTANCE_ID"}, ""),

		NATSURL:           getEnvAny([]string{"BELFRY_NATS_URL"}, ""),
		NATSSubjectPrefix: getEnvAny([]string{"BELFRY_NATS_SUBJECT_PREFIX"}, "belfry.events"),
		EventsRedis:       getEnvBoolAny([]string{"BELFRY_EVENTS_REDIS"}, false),

		S3Bucket:          getEnvAny([]string{"BELFRY_S3_BUCKET"}, ""),
		S3Prefix:          getEnvAny([]string{"BELFRY_S3_PREFIX"}, ""),
		S3Region:          getEnvAny([]string{"BELFRY_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"BELFRY_S3_ENDPOINT"}, ""),
		S3AccessKeyID:     getEnvAny([]string{"BELFRY_S3_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"BELFRY_S3_SECRET_ACCESS_KEY"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"BELFRY_S3_USE_PATH_STYLE"}, false),
		MediaSyncInterval: time.Duration(getEnvIntAny([]string{"BELFRY_MEDIA_SYNC_INTERVAL_SEC"}, 0)) * time.Second,
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("BELFRY_DB_DSN must not be empty")
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("BELFRY_POLL_INTERVAL_MS must be positive")
	}
	if cfg.PollInterval > time.Minute {
		return nil, fmt.Errorf("BELFRY_POLL_INTERVAL_MS must not exceed one minute, schedules would be missed")
	}
	if cfg.ErrorBackoff <= 0 {
		return nil, fmt.Errorf("BELFRY_ERROR_BACKOFF_MS must be positive")
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		return nil, fmt.Errorf("BELFRY_MAX_CONSECUTIVE_FAILURES must be positive")
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	if cfg.MediaSyncInterval < 0 {
		return nil, fmt.Errorf("BELFRY_MEDIA_SYNC_INTERVAL_SEC must not be negative")
	}

	if cfg.AudioEnabled && cfg.PlayerBin == "" {
		return nil, fmt.Errorf("BELFRY_PLAYER_BIN must be set when audio is enabled")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Location resolves the configured timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// HTTPAddr returns the bind address of the status server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"AUDIO_SCHEDULER_ENV":           "use BELFRY_ENV",
		"AUDIO_SCHEDULER_HTTP_BIND":     "use BELFRY_HTTP_BIND",
		"AUDIO_SCHEDULER_HTTP_PORT":     "use BELFRY_HTTP_PORT",
		"AUDIO_SCHEDULER_DB_BACKEND":    "use BELFRY_DB_BACKEND",
		"AUDIO_SCHEDULER_DB_DSN":        "use BELFRY_DB_DSN",
		"AUDIO_SCHEDULER_UPLOAD_FOLDER": "use BELFRY_MEDIA_ROOT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
