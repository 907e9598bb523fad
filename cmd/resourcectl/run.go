package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vibe-io/cdk-extensions-sub001/internal/app"
	"github.com/vibe-io/cdk-extensions-sub001/internal/config"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
	"github.com/vibe-io/cdk-extensions-sub001/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		output   string
		noLedger bool
	)

	cmd := &cobra.Command{
		Use:   "run <start|stop> [target...]",
		Short: "Start or stop targets and wait for them to settle",
		Long: `Run reconciles the named targets, or every configured target when none
are named, towards the requested state. Targets run concurrently up to
reconciler.workers. The command exits with code 2 if any run did not succeed.

Examples:
  resourcectl run stop
  resourcectl run start web api -o json`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return []string{string(resource.ActionStart), string(resource.ActionStop)}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := resource.ParseAction(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reqs, err := buildRequests(cfg, action, args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				select {
				case <-app.SignalContext().Done():
					cancel()
				case <-ctx.Done():
				}
			}()

			shutdownTracing, err := app.SetupTracing(cfg)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			var recorder runner.Recorder
			if !noLedger {
				database, l, err := app.OpenLedger(cfg)
				if err != nil {
					return err
				}
				defer database.Close()
				recorder = l
			}

			r, err := app.NewRunner(ctx, cfg, recorder)
			if err != nil {
				return err
			}

			log.Info().Str("action", string(action)).Int("targets", len(reqs)).Msg("Reconciling targets")
			results := r.Run(ctx, reqs)

			if err := printResults(cmd.OutOrStdout(), output, results); err != nil {
				return err
			}

			failed := 0
			for _, res := range results {
				if !res.Succeeded() {
					failed++
				}
			}
			if failed > 0 {
				return &runFailedError{failed: failed, total: len(results)}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record runs in the ledger database")
	return cmd
}

// buildRequests resolves target names; no names means every target.
func buildRequests(cfg *config.Config, action resource.Action, names []string) ([]runner.Request, error) {
	var targets []resource.Target
	if len(names) == 0 {
		targets = cfg.ResourceTargets()
	} else {
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			t, ok := cfg.FindTarget(name)
			if !ok {
				return nil, fmt.Errorf("unknown target %q", name)
			}
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}

	reqs := make([]runner.Request, 0, len(targets))
	for _, t := range targets {
		reqs = append(reqs, runner.Request{Target: t, Action: action})
	}
	return reqs, nil
}

type resultView struct {
	RunID    string `json:"run_id"`
	Target   string `json:"target"`
	Kind     string `json:"kind"`
	Action   string `json:"action"`
	Outcome  string `json:"outcome"`
	Status   string `json:"status"`
	Polls    int    `json:"polls"`
	Writes   int    `json:"writes"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func viewOf(res runner.Result) resultView {
	v := resultView{
		RunID:    res.RunID,
		Target:   res.Target,
		Kind:     string(res.Kind),
		Action:   string(res.Action),
		Outcome:  res.Outcome.Kind.String(),
		Status:   res.Outcome.Snapshot.Status,
		Polls:    res.Outcome.Polls,
		Writes:   res.Outcome.Writes,
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
	if err := res.Error(); err != nil {
		v.Error = err.Error()
	}
	return v
}

func printResults(w io.Writer, format string, results []runner.Result) error {
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, viewOf(res))
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "table", "":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"TARGET", "KIND", "ACTION", "OUTCOME", "STATUS", "POLLS", "WRITES", "DURATION", "ERROR"})
		for _, v := range views {
			outcome := text.FgGreen.Sprint(v.Outcome)
			if v.Outcome != "success" {
				outcome = text.FgRed.Sprint(v.Outcome)
			}
			t.AppendRow(table.Row{v.Target, v.Kind, v.Action, outcome, v.Status, v.Polls, v.Writes, v.Duration, v.Error})
		}
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}
