package main

import (
	"github.com/spf13/cobra"

	"github.com/vibe-io/cdk-extensions-sub001/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the trigger and health servers",
		Long: `Serve starts the HTTP trigger endpoint, the health and metrics endpoint,
and ledger cleanup. It runs until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := app.SignalContext()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			if err := a.Start(ctx); err != nil {
				_ = a.Stop()
				return err
			}

			a.Wait()
			return a.Stop()
		},
	}
}
