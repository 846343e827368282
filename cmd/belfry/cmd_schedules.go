/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/belfry/internal/models"
	"github.com/friendsincode/belfry/internal/schedule"
	"github.com/friendsincode/belfry/internal/store"
)

var (
	schedulesListID string

	addDays     string
	addFile     string
	addFolder   string
	addDuration int
	addInterval int
	addMax      int
	addShuffle  bool
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Inspect and edit schedules",
	Long: `Schedules fire once in the minute matching their HH:MM time on each
selected weekday. A single schedule plays one file; a playlist schedule plays
the audio files of a folder until its duration or track cap runs out.

Examples:
  belfry schedules ls
  belfry schedules add 08:45 --days "mon tue wed thu fri" --file bell.mp3
  belfry schedules add 12:00 --days sat,sun --folder lunch --duration 30 --shuffle
  belfry schedules mute 9b2e...
  belfry schedules check`,
}

var schedulesLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List schedules with their next run",
	Args:    cobra.NoArgs,
	RunE:    runSchedulesLs,
}

var schedulesAddCmd = &cobra.Command{
	Use:   "add HH:MM",
	Short: "Add a schedule to a list",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulesAdd,
}

var schedulesMuteCmd = &cobra.Command{
	Use:   "mute ID",
	Short: "Mute a schedule; it stays in the list but never fires",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setMuted(args[0], true) },
}

var schedulesUnmuteCmd = &cobra.Command{
	Use:   "unmute ID",
	Short: "Unmute a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setMuted(args[0], false) },
}

var schedulesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulesDelete,
}

var schedulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report schedules with missing targets and unused media files",
	Args:  cobra.NoArgs,
	RunE:  runSchedulesCheck,
}

func init() {
	for _, c := range []*cobra.Command{schedulesLsCmd, schedulesAddCmd, schedulesCheckCmd} {
		c.Flags().StringVar(&schedulesListID, "list", "", "Schedule list id (default: active list)")
	}

	schedulesAddCmd.Flags().StringVar(&addDays, "days", "", `Weekdays, e.g. "mon tue" or "0,1,2" (Monday is 0)`)
	schedulesAddCmd.Flags().StringVar(&addFile, "file", "", "Audio file to play (relative to the media root)")
	schedulesAddCmd.Flags().StringVar(&addFolder, "folder", "", "Folder to play as a playlist")
	schedulesAddCmd.Flags().IntVar(&addDuration, "duration", 0, "Playlist duration in minutes (default 60)")
	schedulesAddCmd.Flags().IntVar(&addInterval, "interval", -1, "Seconds between playlist tracks (default 10)")
	schedulesAddCmd.Flags().IntVar(&addMax, "max-tracks", -1, "Maximum tracks per playlist run (default unlimited)")
	schedulesAddCmd.Flags().BoolVar(&addShuffle, "shuffle", false, "Shuffle playlist order on every pass")
	schedulesAddCmd.MarkFlagRequired("days")
	schedulesAddCmd.MarkFlagsOneRequired("file", "folder")
	schedulesAddCmd.MarkFlagsMutuallyExclusive("file", "folder")

	schedulesCmd.AddCommand(schedulesLsCmd, schedulesAddCmd, schedulesMuteCmd, schedulesUnmuteCmd, schedulesDeleteCmd, schedulesCheckCmd)
	rootCmd.AddCommand(schedulesCmd)
}

func runSchedulesLs(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		listID, err := resolveListID(ctx, st, schedulesListID)
		if err != nil {
			return err
		}
		schedules, err := st.ListSchedules(ctx, listID, store.ScheduleFilter{})
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			fmt.Println("No schedules in this list.")
			return nil
		}

		now := time.Now().In(cfg.Location())
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIME\tDAYS\tTYPE\tTARGET\tMUTED\tNEXT RUN")
		for _, s := range schedules {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Time, schedule.FormatDays(s.Days()), s.Kind, s.Target(), mutedMark(s.IsMuted), nextRunLabel(&s, now))
		}
		return tw.Flush()
	})
}

func mutedMark(muted bool) string {
	if muted {
		return "yes"
	}
	return ""
}

func nextRunLabel(s *models.Schedule, now time.Time) string {
	if s.IsMuted {
		return "-"
	}
	next := s.NextRun(now)
	if next.IsZero() {
		return "never"
	}
	return next.Format("Mon 2006-01-02 15:04")
}

func runSchedulesAdd(cmd *cobra.Command, args []string) error {
	days, err := schedule.ParseDays(addDays)
	if err != nil {
		return err
	}

	sched := &models.Schedule{Time: args[0]}
	sched.SetDays(days)
	if addFolder != "" {
		sched.Kind = models.ScheduleKindPlaylist
		sched.FolderPath = addFolder
		sched.ShuffleMode = addShuffle
		if addDuration > 0 {
			sched.PlaylistDuration = &addDuration
		}
		if addInterval >= 0 {
			sched.TrackInterval = &addInterval
		}
		if addMax >= 0 {
			sched.MaxTracks = &addMax
		}
	} else {
		sched.Kind = models.ScheduleKindSingle
		sched.Filename = addFile
	}

	return withStore(func(ctx context.Context, st *store.GormStore) error {
		listID, err := resolveListID(ctx, st, schedulesListID)
		if err != nil {
			return err
		}
		sched.ScheduleListID = listID

		library := newLibrary()
		if sched.Kind == models.ScheduleKindPlaylist {
			_, err = library.Tracks(sched.FolderPath)
		} else {
			_, err = library.ResolveFile(sched.Filename)
		}
		if err != nil {
			return fmt.Errorf("target %s: %w", sched.Target(), err)
		}

		if err := st.CreateSchedule(ctx, sched); err != nil {
			return err
		}
		fmt.Printf("Added schedule %s at %s on %s\n", sched.ID, sched.Time, schedule.FormatDays(sched.Days()))
		return nil
	})
}

func setMuted(id string, muted bool) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		if err := st.SetMuted(ctx, id, muted); err != nil {
			return notFound(err, "schedule", id)
		}
		state := "Unmuted"
		if muted {
			state = "Muted"
		}
		fmt.Printf("%s schedule %s\n", state, id)
		return nil
	})
}

func runSchedulesDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		if err := st.DeleteSchedule(ctx, args[0]); err != nil {
			return notFound(err, "schedule", args[0])
		}
		fmt.Printf("Deleted schedule %s\n", args[0])
		return nil
	})
}

func runSchedulesCheck(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		listID, err := resolveListID(ctx, st, schedulesListID)
		if err != nil {
			return err
		}
		schedules, err := st.ListSchedules(ctx, listID, store.ScheduleFilter{})
		if err != nil {
			return err
		}

		report, err := newLibrary().Audit(ctx, schedules)
		if err != nil {
			return err
		}

		for _, problem := range report.Broken {
			fmt.Println("BROKEN  ", problem.String())
		}
		for _, name := range report.Unused {
			fmt.Println("UNUSED  ", name)
		}
		fmt.Printf("\n%d schedules checked, %d broken, %d unused files (%d scanned) in %s\n",
			len(schedules), len(report.Broken), len(report.Unused), report.Scanned, report.Duration.Round(time.Millisecond))

		if len(report.Broken) > 0 {
			return fmt.Errorf("%d schedules have unplayable targets", len(report.Broken))
		}
		return nil
	})
}
