/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/belfry/internal/schedule"
	"github.com/friendsincode/belfry/internal/store"
)

var (
	importListID  string
	importReplace bool

	exportListID string
	exportFormat string
	exportOutput string
)

var importCmd = &cobra.Command{
	Use:   "import FILE.csv",
	Short: "Import schedules from CSV",
	Long: `Import schedules from a CSV file into a list (the active list by default).
Every row is validated and every target checked against the media root before
anything is stored; one bad row rejects the whole file.

Columns: time, days, type, filename, folder_path, playlist_duration,
track_interval, max_tracks, shuffle, muted. Only "time" is required.
Pass "-" to read from stdin.

Examples:
  belfry import term.csv
  belfry import term.csv --list 3f1c... --replace`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export schedules as CSV or YAML",
	Long: `Export the schedules of a list (the active list by default). CSV output
can be imported again with "belfry import".

Examples:
  belfry export > schedules.csv
  belfry export --format yaml -o schedules.yaml`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	importCmd.Flags().StringVar(&importListID, "list", "", "Target list id (default: active list)")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Remove the list's existing schedules first")

	exportCmd.Flags().StringVar(&exportListID, "list", "", "List id (default: active list)")
	exportCmd.Flags().StringVar(&exportFormat, "format", schedule.FormatCSV, "Output format: csv or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(importCmd, exportCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()
		in = f
	}

	return withStore(func(ctx context.Context, st *store.GormStore) error {
		svc := schedule.NewExportService(st, newLibrary(), logger)
		result, err := svc.Import(ctx, importListID, in, importReplace)
		if err != nil {
			return listError(err, importListID)
		}

		verb := "Added"
		if result.Replaced {
			verb = "Replaced list with"
		}
		fmt.Fprintf(os.Stderr, "%s %d schedules in list %s\n", verb, result.Imported, result.ListID)
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		var out io.Writer = os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		svc := schedule.NewExportService(st, nil, logger)
		if err := svc.Export(ctx, exportListID, exportFormat, out); err != nil {
			return listError(err, exportListID)
		}

		if exportOutput != "" {
			fmt.Fprintf(os.Stderr, "Schedules written to %s\n", exportOutput)
		}
		return nil
	})
}

func listError(err error, listID string) error {
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if listID == "" {
		return errors.New("no active list; pass --list or create one with 'belfry lists create'")
	}
	return fmt.Errorf("list %s not found", listID)
}
