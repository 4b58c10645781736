package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/modelship/modelship/pkg/engine"
	"github.com/modelship/modelship/pkg/verify"
)

func newVerifyCommand() *cobra.Command {
	var (
		endpointURL  string
		readyTimeout time.Duration
		latencyLimit time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the deployed inference endpoint",
		Long: `Run post-deploy verification against the inference endpoint without
applying anything.

Checks:
  - readiness: polls /ping until the endpoint answers; failure is fatal
  - smoke_test: sends a known claim to /invocations and validates the
    prediction shape
  - model_info and latency: advisory, recorded as warnings on failure

The report lists every check; the command fails only when readiness times
out or the smoke test finds an invalid prediction.`,
		Example: `  # Verify using the endpoint URL from the config
  modelship verify

  # Verify a specific endpoint with a latency threshold
  modelship verify --endpoint https://fraud.example.com --latency-limit 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			url := endpointURL
			if url == "" {
				url = rt.cfg.Config.Deployment.EndpointURL
			}

			verifier, err := verify.NewVerifier(verify.Options{
				BaseURL:      url,
				ReadyTimeout: readyTimeout,
				LatencyLimit: latencyLimit,
				Logger:       rt.logger,
			})
			if err != nil {
				return err
			}

			report, verifyErr := verifier.Verify(ctx, rt.deploymentID())
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

	cmd.Flags().StringVar(&endpointURL, "endpoint", "", "endpoint base URL (defaults to the configured endpoint_url)")
	cmd.Flags().DurationVar(&readyTimeout, "ready-timeout", verify.DefaultReadyTimeout, "how long to wait for endpoint readiness")
	cmd.Flags().DurationVar(&latencyLimit, "latency-limit", 0, "latency check threshold (0 disables the check)")

	return cmd
}
