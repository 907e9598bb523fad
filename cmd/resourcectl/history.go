package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vibe-io/cdk-extensions-sub001/internal/app"
	"github.com/vibe-io/cdk-extensions-sub001/internal/ledger"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "Show recent runs from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			database, l, err := app.OpenLedger(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var entries []*ledger.Entry
			if len(args) == 1 {
				entries, err = l.ByTarget(ctx, args[0], limit)
			} else {
				entries, err = l.Recent(ctx, limit)
			}
			if err != nil {
				return fmt.Errorf("failed to read ledger: %w", err)
			}

			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	return cmd
}

func printHistory(w io.Writer, entries []*ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TIME", "RUN", "TARGET", "ACTION", "EVENT", "OUTCOME", "KEY"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Timestamp.Local().Format(time.DateTime),
			shortID(e.RunID),
			e.Target,
			e.Action,
			string(e.EventType),
			e.Outcome,
			e.IdempotencyKey,
		})
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
