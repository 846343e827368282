/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/belfry/internal/audio"
	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/executor"
	"github.com/friendsincode/belfry/internal/playback"
)

var mediaAddName string

var playCmd = &cobra.Command{
	Use:   "play PATH",
	Short: "Play one file through the configured player",
	Long: `Play a single file and wait for it to finish. Use it to check that the
player binary and audio device work. Relative paths resolve against the media
root.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage the media root",
}

var mediaSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the configured S3 bucket into the media root",
	Args:  cobra.NoArgs,
	RunE:  runMediaSync,
}

var mediaAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Copy an audio file into the media root",
	Args:  cobra.ExactArgs(1),
	RunE:  runMediaAdd,
}

var mediaLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List audio files under the media root",
	Args:    cobra.NoArgs,
	RunE:    runMediaLs,
}

func init() {
	mediaAddCmd.Flags().StringVar(&mediaAddName, "as", "", "Name inside the media root, may include subfolders (default: file name)")
	mediaCmd.AddCommand(mediaSyncCmd, mediaAddCmd, mediaLsCmd)
	rootCmd.AddCommand(playCmd, mediaCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend := audio.NewProcessBackend(audio.ProcessConfig{Bin: cfg.PlayerBin, Args: cfg.PlayerArgs}, logger)
	defer backend.Stop()

	clk := clock.Real{}
	player := playback.NewRunner(backend, newLibrary(), executor.Inline{Ctx: ctx}, clk, nil, playback.Options{}, logger)

	fmt.Fprintf(os.Stderr, "Playing %s with %s...\n", args[0], cfg.PlayerBin)
	if err := player.PlayFile(ctx, args[0]); err != nil {
		return fmt.Errorf("play %s: %w", args[0], err)
	}
	fmt.Fprintln(os.Stderr, "Playback finished.")
	return nil
}

func runMediaSync(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("no bucket configured; set BELFRY_S3_BUCKET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := newS3Source(ctx)
	if err != nil {
		return err
	}
	result, err := newLibrary().Mirror(ctx, src, cfg.S3Prefix)
	if err != nil {
		return fmt.Errorf("mirror media: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Mirror complete: %d downloaded, %d unchanged, %d failed\n",
		result.Downloaded, result.Skipped, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d objects failed to download", result.Failed)
	}
	return nil
}

func runMediaAdd(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	name := mediaAddName
	if name == "" {
		name = filepath.Base(args[0])
	}

	rel, err := newLibrary().Store(context.Background(), name, f)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %s\n", rel)
	return nil
}

func runMediaLs(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	files, err := newLibrary().Files(context.Background())
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}
