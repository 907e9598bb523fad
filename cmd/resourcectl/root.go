package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vibe-io/cdk-extensions-sub001/internal/app"
	"github.com/vibe-io/cdk-extensions-sub001/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates every requested run converged.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (bad config, invalid arguments).
	ExitCodeError = 1
	// ExitCodeRunFailed indicates at least one run did not succeed.
	ExitCodeRunFailed = 2
)

// runFailedError is returned when some targets did not converge.
type runFailedError struct {
	failed int
	total  int
}

func (e *runFailedError) Error() string {
	return fmt.Sprintf("%d of %d runs did not succeed", e.failed, e.total)
}

var configPath string

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resourcectl",
		Short: "Start and stop cloud resources and wait until they settle",
		Long: `resourcectl drives EC2 instances, ECS services, Auto Scaling groups,
RDS instances and clusters, and App Runner services to a started or stopped
state, polling until the resource reports the desired status.`,
		Version:      app.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "resourcectl version %s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newTargetsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		return getExitCode(err)
	}
	return ExitCodeSuccess
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var runFailed *runFailedError
	if errors.As(err, &runFailed) {
		return ExitCodeRunFailed
	}
	return ExitCodeError
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration %s: %w", configPath, err)
	}

	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)
	log.Debug().Str("config", configPath).Int("targets", len(cfg.Targets)).Msg("Configuration loaded")
	return cfg, nil
}

func init() {
	// Quiet console logging until a config says otherwise
	setupLogging("warn", false, isTerminal(os.Stderr))
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
