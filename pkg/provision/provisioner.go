// Package provision invokes the provisioning engine as a subprocess with a
// structured JSON protocol: one invocation message on stdin, one response
// message on stdout. Failed invocations are never retried here; retry policy
// belongs to the operator.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// Operation names accepted by the engine binary.
const (
	opPlan    = "plan"
	opApply   = "apply"
	opDestroy = "destroy"
)

// invocation is the JSON message written to the engine's stdin.
type invocation struct {
	Operation    string                 `json:"operation"`
	DeploymentID string                 `json:"deployment_id"`
	Module       string                 `json:"module"`
	Source       string                 `json:"source"`
	Inputs       map[string]interface{} `json:"inputs,omitempty"`
}

// response is the JSON message read from the engine's stdout.
type response struct {
	Outputs map[string]interface{} `json:"outputs,omitempty"`
	Summary string                 `json:"summary,omitempty"`
	Changed bool                   `json:"changed"`
	Error   string                 `json:"error,omitempty"`
}

// ExecProvisioner runs a provisioning engine binary per module invocation.
type ExecProvisioner struct {
	binary  string
	workDir string
	env     []string
	timeout time.Duration
	logger  zerolog.Logger
}

// Options configures an ExecProvisioner.
type Options struct {
	// Binary is the engine executable.
	Binary string

	// WorkDir is the working directory for invocations. Empty means the
	// current directory.
	WorkDir string

	// Env is extra environment passed to the engine, KEY=VALUE form.
	Env []string

	// Timeout bounds a single invocation. Zero means no limit.
	Timeout time.Duration

	Logger zerolog.Logger
}

// NewExecProvisioner creates a provisioner invoking the given binary.
func NewExecProvisioner(opts Options) (*ExecProvisioner, error) {
	if opts.Binary == "" {
		return nil, engine.NewConfigurationError("provisioning engine binary is required", nil)
	}

	return &ExecProvisioner{
		binary:  opts.Binary,
		workDir: opts.WorkDir,
		env:     opts.Env,
		timeout: opts.Timeout,
		logger:  opts.Logger.With().Str("component", "provisioner").Logger(),
	}, nil
}

// Plan previews a module's changes without mutating infrastructure.
func (p *ExecProvisioner) Plan(ctx context.Context, req engine.ModuleRequest) (*engine.ModuleResult, error) {
	return p.invoke(ctx, opPlan, req)
}

// Apply provisions a module.
func (p *ExecProvisioner) Apply(ctx context.Context, req engine.ModuleRequest) (*engine.ModuleResult, error) {
	return p.invoke(ctx, opApply, req)
}

// Destroy deprovisions a module.
func (p *ExecProvisioner) Destroy(ctx context.Context, req engine.ModuleRequest) (*engine.ModuleResult, error) {
	return p.invoke(ctx, opDestroy, req)
}

// invoke runs one engine subprocess and decodes its response.
func (p *ExecProvisioner) invoke(ctx context.Context, operation string, req engine.ModuleRequest) (*engine.ModuleResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := invocation{
		Operation:    operation,
		DeploymentID: req.DeploymentID,
		Module:       req.Module,
		Source:       req.Source,
		Inputs:       req.Inputs,
	}
	input, err := json.Marshal(msg)
	if err != nil {
		return nil, engine.NewProvisioningError("failed to encode engine invocation", err).
			WithModule(req.Module)
	}

	cmd := exec.CommandContext(ctx, p.binary, operation)
	cmd.Dir = p.workDir
	if len(p.env) > 0 {
		cmd.Env = append(cmd.Environ(), p.env...)
	}
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	p.logger.Debug().
		Str("module", req.Module).
		Str("operation", operation).
		Msg("Invoking provisioning engine")

	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return nil, engine.NewProvisioningError(
			fmt.Sprintf("engine %s for module %s interrupted", operation, req.Module),
			ctx.Err(),
		).WithModule(req.Module).WithCode(engine.ErrCodeEngineFailed)
	}

	if runErr != nil {
		return nil, engine.NewProvisioningError(
			fmt.Sprintf("engine %s for module %s failed: %s", operation, req.Module, excerpt(stderr.String())),
			runErr,
		).WithModule(req.Module).WithCode(engine.ErrCodeEngineFailed)
	}

	var res response
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, engine.NewProvisioningError(
			fmt.Sprintf("engine %s for module %s returned malformed output", operation, req.Module),
			err,
		).WithModule(req.Module).WithCode(engine.ErrCodeEngineFailed)
	}

	// Engines may exit zero and still report a structured failure.
	if res.Error != "" {
		return nil, engine.NewProvisioningError(
			fmt.Sprintf("engine %s for module %s failed: %s", operation, req.Module, res.Error),
			nil,
		).WithModule(req.Module).WithCode(engine.ErrCodeEngineFailed)
	}

	p.logger.Debug().
		Str("module", req.Module).
		Str("operation", operation).
		Dur("duration", duration).
		Bool("changed", res.Changed).
		Msg("Engine invocation complete")

	return &engine.ModuleResult{
		Outputs: res.Outputs,
		Summary: res.Summary,
		Changed: res.Changed,
	}, nil
}

// excerpt trims engine stderr to a single readable line.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no error output"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
