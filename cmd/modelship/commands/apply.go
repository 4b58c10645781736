package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelship/modelship/pkg/engine"
	"github.com/modelship/modelship/pkg/telemetry"
	"github.com/modelship/modelship/pkg/verify"
)

func newApplyCommand() *cobra.Command {
	var (
		autoApprove    bool
		engineBinary   string
		engineTimeout  time.Duration
		lockTimeout    time.Duration
		confirmTimeout time.Duration
		policyDir      string
		skipVerify     bool
		readyTimeout   time.Duration
		latencyLimit   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Plan, confirm, and provision the deployment",
		Long: `Plan and apply the deployment configuration.

This command:
  - Acquires the deployment lock
  - Computes the change plan and runs policy admission
  - Prompts for confirmation (unless --auto-approve); only 'yes' proceeds
  - Provisions modules in dependency order, checkpointing state after
    every module
  - Verifies the inference endpoint after a successful apply

A declined prompt cancels the run without touching state. A failed module
stops the run; re-running apply resumes from the failed module.`,
		Example: `  # Apply with confirmation prompt
  modelship apply

  # Apply non-interactively
  modelship apply --auto-approve

  # Apply without post-deploy verification
  modelship apply --skip-verify`,
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

			spanCtx, span := rt.tel.Tracer.StartSpan(ctx, "run.apply",
				telemetry.AttrDeploymentID.String(rt.deploymentID()))
			timer := telemetry.NewTimer()
			rt.tel.Metrics.RecordRunStarted("apply")

			result, err := orch.Apply(spanCtx, rt.deploymentID(), rt.cfg.Modules)
			phase := engine.PhaseFailed
			if err == nil {
				phase = result.Phase
			}
			rt.tel.Metrics.RecordRunCompleted("apply", string(phase), timer.Duration())
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
				Int("applied", len(result.Applied)).
				Msg("Apply succeeded")

			if skipVerify {
				return nil
			}
			endpointURL := rt.cfg.Config.Deployment.EndpointURL
			if endpointURL == "" {
				rt.logger.Warn().Msg("No endpoint URL configured, skipping verification")
				return nil
			}

			verifier, err := verify.NewVerifier(verify.Options{
				BaseURL:      endpointURL,
				ReadyTimeout: readyTimeout,
				LatencyLimit: latencyLimit,
				Logger:       rt.logger,
			})
			if err != nil {
				return err
			}

			report, verifyErr := verifier.Verify(ctx, rt.deploymentID())
			for _, check := range report.Checks {
				rt.tel.Metrics.RecordVerificationCheck(check.Name, string(check.Outcome))
				if err := rt.journal.RecordCheck(ctx, result.RunID, check); err != nil {
					rt.logger.Warn().Err(err).Msg("Failed to journal verification check")
				}
			}
			renderReport(report)
			if verifyErr != nil {
				return verifyErr
			}
			if report.Outcome() == engine.CheckFail {
				return engine.NewVerificationError("verification checks failed", nil)
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
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "skip post-deploy verification")
	cmd.Flags().DurationVar(&readyTimeout, "ready-timeout", verify.DefaultReadyTimeout, "how long to wait for endpoint readiness")
	cmd.Flags().DurationVar(&latencyLimit, "latency-limit", 0, "latency check threshold (0 disables the check)")

	return cmd
}

// renderReport prints a verification report's checks and aggregate outcome.
func renderReport(report *engine.VerificationReport) {
	if report == nil {
		return
	}
	fmt.Printf("\nVerification report for %s:\n", report.DeploymentID)
	for _, check := range report.Checks {
		fmt.Printf("  [%s] %-12s %s (%.2fs)\n",
			check.Outcome, check.Name, check.Detail, check.Duration.Seconds())
	}
	fmt.Printf("Outcome: %s\n", report.Outcome())
}
