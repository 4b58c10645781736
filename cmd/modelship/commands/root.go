package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	varFiles   []string
	stateDir   string
	logLevel   string
	jsonOutput bool

	metricsListen string
	traceEndpoint string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modelship",
		Short: "modelship - ML inference deployment orchestrator",
		Long: `modelship orchestrates deployments of ML inference services.

It reads a CUE deployment declaration, resolves module dependencies,
computes a change plan against recorded state, and drives a provisioning
engine module by module with checkpointed state, post-deploy
verification, and reverse-order teardown.

Features:
  - Typed deployment configs via CUE, with Starlark compute blocks
  - Dependency-ordered change plans with idempotency hashing
  - Single-writer deployment locking
  - Policy admission via Rego
  - Post-deploy readiness and smoke verification
  - SQLite run journal`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deploy.cue", "deployment config file path")
	rootCmd.PersistentFlags().StringSliceVar(&varFiles, "var-file", nil, "YAML variable files, later files win")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", ".modelship", "directory for state, locks, and the run journal")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "log in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "export OTLP traces to this gRPC endpoint")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newUnlockCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCostCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
