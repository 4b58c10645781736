package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelship/modelship/pkg/engine"
	"github.com/modelship/modelship/pkg/registry"
	"github.com/modelship/modelship/pkg/telemetry"
)

func newDestroyCommand() *cobra.Command {
	var (
		autoApprove    bool
		engineBinary   string
		engineTimeout  time.Duration
		lockTimeout    time.Duration
		confirmTimeout time.Duration
		policyDir      string
		skipCleanup    bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down the deployment",
		Long: `Tear down the deployment in reverse dependency order.

Modules already destroyed or never provisioned plan as no-ops, so destroy
is safe to re-run. After the last module is deprovisioned, model images
are removed from the configured image repository; cleanup failures are
reported as warnings and never fail the teardown.`,
		Example: `  # Tear down with confirmation prompt
  modelship destroy

  # Tear down non-interactively, keeping registry images
  modelship destroy --auto-approve --skip-cleanup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			orch, err := rt.buildOrchestrator(ctx, orchestratorOptions{
				autoApprove:    autoApprove,
				engineBinary:   engineBinary,
				engineTimeout:  engineTimeout,
				lockTimeout:    lockTimeout,
				confirmTimeout: confirmTimeout,
				policyDir:      policyDir,
			})
			if err != nil {
				return err
			}

			var cleaner engine.ArtifactCleaner
			repo := rt.cfg.Config.Deployment.ImageRepository
			if repo != "" && !skipCleanup {
				cleaner, err = registry.NewImageCleaner(registry.Options{
					Repository: repo,
					Logger:     rt.logger,
				})
				if err != nil {
					return err
				}
			}

			spanCtx, span := rt.tel.Tracer.StartSpan(ctx, "run.destroy",
				telemetry.AttrDeploymentID.String(rt.deploymentID()))
			timer := telemetry.NewTimer()
			rt.tel.Metrics.RecordRunStarted("destroy")

			result, err := orch.Destroy(spanCtx, rt.deploymentID(), rt.cfg.Modules, cleaner)
			phase := engine.PhaseFailed
			if err == nil {
				phase = result.Phase
			}
			rt.tel.Metrics.RecordRunCompleted("destroy", string(phase), timer.Duration())
			if err != nil {
				telemetry.RecordError(span, err)
				span.End()
				return err
			}
			telemetry.RecordSuccess(span)
			span.End()
			if result.Phase == engine.PhaseCancelled {
				return ErrCancelled
			}

			rt.logger.Info().
				Str("run_id", result.RunID).
				Int("destroyed", len(result.Destroyed)).
				Msg("Teardown succeeded")

			for _, w := range result.CleanupWarnings {
				fmt.Printf("cleanup warning: %s\n", w)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")
	cmd.Flags().StringVar(&engineBinary, "engine", "modelship-engine", "provisioning engine binary")
	cmd.Flags().DurationVar(&engineTimeout, "engine-timeout", 30*time.Minute, "timeout per engine invocation")
	cmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 0, "how long to wait for the deployment lock (0 fails immediately)")
	cmd.Flags().DurationVar(&confirmTimeout, "confirm-timeout", 5*time.Minute, "confirmation prompt timeout; expiry cancels the run")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional Rego admission policies")
	cmd.Flags().BoolVar(&skipCleanup, "skip-cleanup", false, "leave model images in the registry")

	return cmd
}
