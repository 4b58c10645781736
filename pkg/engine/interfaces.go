package engine

import (
	"context"
	"time"
)

// Provisioner drives the underlying provisioning engine for a single module.
// Implementations wrap an engine invocation; the orchestrator never retries
// a failed call.
type Provisioner interface {
	// Plan asks the engine for a human-readable preview of the changes the
	// module would make. Plan must not mutate infrastructure.
	Plan(ctx context.Context, req ModuleRequest) (*ModuleResult, error)

	// Apply provisions the module and returns its published outputs.
	Apply(ctx context.Context, req ModuleRequest) (*ModuleResult, error)

	// Destroy deprovisions the module. Destroying an absent module succeeds
	// without effect.
	Destroy(ctx context.Context, req ModuleRequest) (*ModuleResult, error)
}

// ModuleRequest is a single engine invocation for one module.
type ModuleRequest struct {
	// DeploymentID is the deployment being operated on.
	DeploymentID string `json:"deployment_id"`

	// Module is the module name.
	Module string `json:"module"`

	// Source is the module definition the engine should load.
	Source string `json:"source"`

	// Inputs are the fully resolved input values, upstream references
	// already substituted.
	Inputs map[string]interface{} `json:"inputs"`
}

// ModuleResult is the engine's structured response to one invocation.
type ModuleResult struct {
	// Outputs are the values the module published, on success.
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Summary is the engine's human-readable account of what it did or
	// would do.
	Summary string `json:"summary,omitempty"`

	// Changed reports whether the invocation would mutate (Plan) or did
	// mutate (Apply, Destroy) infrastructure.
	Changed bool `json:"changed"`
}

// StateStore persists deployment state. Writes are atomic: a reader never
// observes a partially written record.
type StateStore interface {
	// Load reads the current state for a deployment. A deployment that has
	// never been applied loads as an empty state, not an error.
	Load(deploymentID string) (*DeploymentState, error)

	// Save atomically persists the state, incrementing its version.
	Save(state *DeploymentState) error
}

// Locker guards a deployment against concurrent mutation. At most one
// holder exists per deployment at a time.
type Locker interface {
	// Acquire takes the deployment lock, waiting up to timeout for a
	// current holder to release it. A zero timeout fails immediately if
	// the lock is held.
	Acquire(ctx context.Context, deploymentID string, timeout time.Duration) (Lease, error)

	// ForceReclaim breaks an existing lock regardless of holder. Reserved
	// for the operator-facing unlock command; never called automatically.
	ForceReclaim(deploymentID string) error
}

// Lease is a held deployment lock.
type Lease interface {
	// Holder describes who holds the lock.
	Holder() string

	// Release frees the lock. Releasing twice is a no-op.
	Release() error
}

// Confirmer gates mutating runs on an explicit operator decision.
type Confirmer interface {
	// Confirm presents the plan and returns the operator's decision. A
	// false return cancels the run; cancellation is not a failure.
	Confirm(ctx context.Context, plan *ChangePlan) (bool, error)
}

// Journal records run history for the status and history surfaces. Journal
// failures never abort a run.
type Journal interface {
	// RecordRun inserts or updates a run record.
	RecordRun(ctx context.Context, run *Run) error

	// RecordModule records one module's outcome within a run.
	RecordModule(ctx context.Context, runID, module string, action ActionType, status ModuleStatus, detail string) error

	// RecordCheck records one verification check's outcome within a run.
	RecordCheck(ctx context.Context, runID string, check CheckResult) error

	// ListRuns returns the most recent runs for a deployment, newest first.
	ListRuns(ctx context.Context, deploymentID string, limit int) ([]*Run, error)
}

// PolicyEvaluator admits or denies a change plan before confirmation.
type PolicyEvaluator interface {
	// EvaluatePlan returns the policy decision for a plan. Denial aborts
	// the run before the confirmation gate.
	EvaluatePlan(ctx context.Context, plan *ChangePlan) (*PolicyDecision, error)
}

// PolicyDecision is the outcome of plan admission.
type PolicyDecision struct {
	// Allowed reports whether the plan may proceed.
	Allowed bool `json:"allowed"`

	// Denials lists the rules that rejected the plan.
	Denials []string `json:"denials,omitempty"`

	// Warnings lists advisory findings that do not block the plan.
	Warnings []string `json:"warnings,omitempty"`
}

// ArtifactCleaner removes out-of-band artifacts during teardown. Failures
// surface as warnings, never as run failures.
type ArtifactCleaner interface {
	// Cleanup removes artifacts associated with the deployment and returns
	// a warning message per artifact it could not remove.
	Cleanup(ctx context.Context, deploymentID string) []string
}
