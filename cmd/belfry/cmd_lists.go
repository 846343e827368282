/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/belfry/internal/db"
	"github.com/friendsincode/belfry/internal/store"
)

var listActivate bool

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Manage schedule lists",
	Long: `Schedule lists are named collections of schedules. Exactly one list is
active at a time; the scheduler only evaluates the active list.

Examples:
  belfry lists ls
  belfry lists create "Term time" --activate
  belfry lists activate 3f1c...
  belfry lists delete 3f1c...`,
}

var listsLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List schedule lists",
	Args:    cobra.NoArgs,
	RunE:    runListsLs,
}

var listsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a schedule list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListsCreate,
}

var listsActivateCmd = &cobra.Command{
	Use:   "activate ID",
	Short: "Make a list the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runListsActivate,
}

var listsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a list and its schedules",
	Long:  "Delete a list and all of its schedules. Deleting the active list activates the oldest remaining list.",
	Args:  cobra.ExactArgs(1),
	RunE:  runListsDelete,
}

func init() {
	listsCreateCmd.Flags().BoolVar(&listActivate, "activate", false, "Make the new list active")
	listsCmd.AddCommand(listsLsCmd, listsCreateCmd, listsActivateCmd, listsDeleteCmd)
	rootCmd.AddCommand(listsCmd)
}

// withStore loads config, opens the store and runs fn.
func withStore(fn func(ctx context.Context, st *store.GormStore) error) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close(database)
	return fn(context.Background(), st)
}

func runListsLs(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		lists, err := st.ListLists(ctx)
		if err != nil {
			return err
		}
		if len(lists) == 0 {
			fmt.Println("No schedule lists.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tSCHEDULES\tCREATED")
		for _, list := range lists {
			schedules, err := st.ListSchedules(ctx, list.ID, store.ScheduleFilter{})
			if err != nil {
				return err
			}
			active := ""
			if list.IsActive {
				active = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", list.ID, list.Name, active, len(schedules), list.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	})
}

func runListsCreate(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		list, err := st.CreateList(ctx, args[0], listActivate)
		if err != nil {
			return err
		}
		fmt.Printf("Created list %q (%s)\n", list.Name, list.ID)
		return nil
	})
}

func runListsActivate(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		if err := st.ActivateList(ctx, args[0]); err != nil {
			return notFound(err, "list", args[0])
		}
		fmt.Printf("Activated list %s\n", args[0])
		return nil
	})
}

func runListsDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.GormStore) error {
		if err := st.DeleteList(ctx, args[0]); err != nil {
			return notFound(err, "list", args[0])
		}
		fmt.Printf("Deleted list %s\n", args[0])
		return nil
	})
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return err
}

// resolveListID returns id, or the active list's id when id is empty.
func resolveListID(ctx context.Context, st *store.GormStore, id string) (string, error) {
	if id != "" {
		if _, err := st.GetList(ctx, id); err != nil {
			return "", notFound(err, "list", id)
		}
		return id, nil
	}
	list, err := st.GetActiveList(ctx)
	if err != nil {
		return "", err
	}
	if list == nil {
		return "", errors.New("no active list; pass --list or create one with 'belfry lists create'")
	}
	return list.ID, nil
}
