package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
)

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List configured targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printTargets(cmd.OutOrStdout(), cfg.ResourceTargets())
			return nil
		},
	}
}

func printTargets(w io.Writer, targets []resource.Target) {
	if len(targets) == 0 {
		fmt.Fprintln(w, "No targets configured")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"NAME", "KIND", "ID", "CLUSTER", "CAPACITY", "OVERRIDES"})
	for _, tgt := range targets {
		capacity := ""
		if tgt.Kind == resource.KindECSService || tgt.Kind == resource.KindAutoScalingGroup {
			capacity = fmt.Sprintf("%d/%d/%d", tgt.Capacity.Min, tgt.Capacity.Desired, tgt.Capacity.Max)
		}
		var overrides []string
		for action := range tgt.Conditions {
			overrides = append(overrides, string(action))
		}
		slices.Sort(overrides)
		t.AppendRow(table.Row{tgt.Name, string(tgt.Kind), tgt.ID, tgt.Cluster, capacity, strings.Join(overrides, ",")})
	}
	t.Render()
}
