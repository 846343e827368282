/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/belfry/internal/config"
	"github.com/friendsincode/belfry/internal/db"
	"github.com/friendsincode/belfry/internal/logging"
	"github.com/friendsincode/belfry/internal/media"
	"github.com/friendsincode/belfry/internal/store"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "belfry",
	Short: "Belfry - scheduled audio playback",
	Long: `Belfry plays audio files and folder playlists at configured times of day
on selected weekdays. Schedules live in swappable lists; only the active list
is evaluated.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	for _, warning := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warning)
	}
	return nil
}

// openStore connects, migrates and wraps the database. The caller closes
// the returned gorm handle.
func openStore() (*gorm.DB, *store.GormStore, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		db.Close(database)
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return database, store.NewGormStore(database, logger), nil
}

func newLibrary() *media.Library {
	return media.NewLibrary(cfg.MediaRoot, logger)
}
