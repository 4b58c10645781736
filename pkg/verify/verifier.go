// Package verify runs post-deploy checks against a provisioned inference
// endpoint: a readiness poll, a synthetic smoke prediction, and extended
// checks. The output is a report; only the readiness check is fatal.
package verify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// Default bounds for the readiness poll.
const (
	DefaultReadyTimeout = 10 * time.Minute
	DefaultPollInterval = 10 * time.Second
)

// Verifier runs post-deploy checks against an endpoint.
type Verifier struct {
	client *http.Client
	logger zerolog.Logger

	baseURL      string
	readyTimeout time.Duration
	pollInterval time.Duration
	latencyLimit time.Duration
}

// Options configures a Verifier.
type Options struct {
	// BaseURL is the endpoint root, e.g. "https://fraud.example.com".
	BaseURL string

	// ReadyTimeout bounds the readiness poll.
	ReadyTimeout time.Duration

	// PollInterval is the delay between readiness probes.
	PollInterval time.Duration

	// LatencyLimit is the threshold for the latency check. Zero disables
	// the check.
	LatencyLimit time.Duration

	// Client is the HTTP client to use; nil gets a default with timeouts.
	Client *http.Client

	Logger zerolog.Logger
}

// NewVerifier creates a verifier.
func NewVerifier(opts Options) (*Verifier, error) {
	if opts.BaseURL == "" {
		return nil, engine.NewConfigurationError("verifier endpoint URL is required", nil)
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Verifier{
		client:       opts.Client,
		logger:       opts.Logger.With().Str("component", "verifier").Logger(),
		baseURL:      opts.BaseURL,
		readyTimeout: opts.ReadyTimeout,
		pollInterval: opts.PollInterval,
		latencyLimit: opts.LatencyLimit,
	}, nil
}

// Verify runs all checks and returns the report. The readiness check is
// fatal: if the endpoint never becomes ready, Verify returns a verification
// error alongside the partial report and skips the remaining checks. Smoke
// and extended check failures are recorded in the report, never returned as
// errors.
func (v *Verifier) Verify(ctx context.Context, deploymentID string) (*engine.VerificationReport, error) {
	report := &engine.VerificationReport{
		DeploymentID: deploymentID,
		StartedAt:    time.Now().UTC(),
	}

	ready := v.checkReadiness(ctx)
	report.Checks = append(report.Checks, ready)
	if ready.Outcome == engine.CheckFail {
		report.CompletedAt = time.Now().UTC()
		return report, engine.NewVerificationError(
			fmt.Sprintf("endpoint not ready: %s", ready.Detail), nil,
		).WithCode(engine.ErrCodeNotReady)
	}

	report.Checks = append(report.Checks, v.checkSmoke(ctx))

	if v.latencyLimit > 0 {
		report.Checks = append(report.Checks, v.checkLatency(ctx))
	}
	report.Checks = append(report.Checks, v.checkModelInfo(ctx))

	report.CompletedAt = time.Now().UTC()

	v.logger.Info().
		Str("deployment", deploymentID).
		Str("outcome", string(report.Outcome())).
		Int("checks", len(report.Checks)).
		Msg("Verification complete")
	return report, nil
}

// checkReadiness polls the health endpoint until it answers 200 or the
// timeout elapses.
func (v *Verifier) checkReadiness(ctx context.Context) engine.CheckResult {
	start := time.Now()
	deadline := start.Add(v.readyTimeout)

	var lastErr string
	attempts := 0
	for {
		attempts++
		status, err := v.ping(ctx)
		if err == nil && status == http.StatusOK {
			return engine.CheckResult{
				Name:     "readiness",
				Outcome:  engine.CheckPass,
				Detail:   fmt.Sprintf("ready after %d probe(s)", attempts),
				Duration: time.Since(start),
			}
		}
		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = fmt.Sprintf("health returned %d", status)
		}

		if time.Now().After(deadline) {
			return engine.CheckResult{
				Name:     "readiness",
				Outcome:  engine.CheckFail,
				Detail:   fmt.Sprintf("timed out after %d probe(s): %s", attempts, lastErr),
				Duration: time.Since(start),
			}
		}

		select {
		case <-ctx.Done():
			return engine.CheckResult{
				Name:     "readiness",
				Outcome:  engine.CheckFail,
				Detail:   "interrupted: " + ctx.Err().Error(),
				Duration: time.Since(start),
			}
		case <-time.After(v.pollInterval):
		}
	}
}

// ping performs one health probe.
func (v *Verifier) ping(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/ping", nil)
	if err != nil {
		return 0, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// checkModelInfo confirms the model metadata endpoint answers. Extended
// check; a failure becomes a warning.
func (v *Verifier) checkModelInfo(ctx context.Context) engine.CheckResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/model-info", nil)
	if err != nil {
		return warnCheck("model_info", err.Error(), start)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return warnCheck("model_info", err.Error(), start)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return warnCheck("model_info", fmt.Sprintf("returned %d", resp.StatusCode), start)
	}
	return engine.CheckResult{
		Name:     "model_info",
		Outcome:  engine.CheckPass,
		Detail:   "model metadata available",
		Duration: time.Since(start),
	}
}

// checkLatency times a burst of smoke predictions against the limit.
// Extended check; breaching the limit is a warning, not a failure.
func (v *Verifier) checkLatency(ctx context.Context) engine.CheckResult {
	const probes = 5
	start := time.Now()

	var worst time.Duration
	for i := 0; i < probes; i++ {
		probeStart := time.Now()
		if _, err := v.predict(ctx, SmokeClaim()); err != nil {
			return warnCheck("latency", "probe failed: "+err.Error(), start)
		}
		if d := time.Since(probeStart); d > worst {
			worst = d
		}
	}

	detail := fmt.Sprintf("worst of %d probes: %s (limit %s)", probes, worst.Round(time.Millisecond), v.latencyLimit)
	outcome := engine.CheckPass
	if worst > v.latencyLimit {
		outcome = engine.CheckWarn
	}
	return engine.CheckResult{
		Name:     "latency",
		Outcome:  outcome,
		Detail:   detail,
		Duration: time.Since(start),
	}
}

func warnCheck(name, detail string, start time.Time) engine.CheckResult {
	return engine.CheckResult{
		Name:     name,
		Outcome:  engine.CheckWarn,
		Detail:   detail,
		Duration: time.Since(start),
	}
}
