package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/server"
	"github.com/dmitrijs2005/remindsync/internal/server/auditor"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SoR schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := server.Migrate(cmd.Context(), loadConfig()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the SoR with the mirror",
		Long: `Compares the SoR with the mirror and repairs divergences.

By default only what changed since the last checkpoint is compared;
--full compares everything. The report is printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := server.NewApp(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			var rep *auditor.Report
			if full {
				rep, err = app.Auditor().FullSweep(cmd.Context())
			} else {
				rep, err = app.Auditor().IncrementalSweep(cmd.Context())
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if len(rep.Errors) > 0 {
				return fmt.Errorf("%d divergences could not be repaired", len(rep.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "compare every record and document")
	return cmd
}

func expandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand",
		Short: "Materialize the next occurrence of every recurring reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := server.NewApp(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Expander().ExpandAll(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%d occurrences created\n", n)
			return err
		},
	}
}

func retriesCmd() *cobra.Command {
	var status string
	var replay bool
	cmd := &cobra.Command{
		Use:   "retries",
		Short: "List (and optionally replay) queued sync propagations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := server.NewApp(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			w := app.RetryWorker()
			if replay {
				n, err := w.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d replayed\n", n)
			}

			items, err := w.Pending(cmd.Context(), status)
			if err != nil {
				return err
			}
			printRetries(cmd, items)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", models.RetryPending, "queue status: pending, done or dead")
	cmd.Flags().BoolVar(&replay, "replay", false, "replay due items once before listing")
	return cmd
}

func printRetries(cmd *cobra.Command, items []*models.SyncRetry) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIRECTION\tOP\tRECORD\tEXTERNAL\tATTEMPTS\tNEXT\tLAST ERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			it.ID, it.Direction, it.Op, it.RecordID, it.ExternalID,
			it.Attempts, it.MaxAttempts, it.NextAttemptAt.Format(time.RFC3339), it.LastError)
	}
	_ = tw.Flush()
}
