package engine

import (
	"time"
)

// Module is a named, independently provisionable unit of infrastructure with
// declared inputs and published outputs.
type Module struct {
	// Name is the unique module name (e.g., "model_endpoint").
	Name string `json:"name"`

	// Source identifies the module definition consumed by the provisioning
	// engine (e.g., a directory of resource declarations).
	Source string `json:"source"`

	// Enabled toggles the module's presence in the deployment. Disabled
	// modules are declared but never planned or provisioned.
	Enabled bool `json:"enabled"`

	// DependsOn lists producer module names whose outputs this module
	// consumes. The edges must form a DAG.
	DependsOn []string `json:"depends_on,omitempty"`

	// Inputs are the module's declared inputs, either operator-supplied
	// literals or references to upstream outputs.
	Inputs map[string]InputValue `json:"inputs,omitempty"`
}

// InputValue is a single module input: a literal value, a reference to an
// upstream module's published output, or a Starlark expression evaluated at
// parse time.
type InputValue struct {
	// Literal is an operator-supplied value.
	Literal interface{} `json:"literal,omitempty"`

	// FromModule names the upstream module publishing the referenced output.
	FromModule string `json:"from_module,omitempty"`

	// Output names the upstream output to consume.
	Output string `json:"output,omitempty"`
}

// IsReference returns true if the input consumes an upstream output.
func (v InputValue) IsReference() bool {
	return v.FromModule != ""
}

// DeploymentState is the persisted record of a deployment: per-module status
// and published outputs, plus a version counter incremented on every
// successful write. Owned exclusively by the state store; mutated only while
// the deployment lock is held.
type DeploymentState struct {
	// DeploymentID is the stable identifier keying this state record.
	DeploymentID string `json:"deployment_id"`

	// Version is incremented on every successful write.
	Version int64 `json:"version"`

	// UpdatedAt is when the state was last written.
	UpdatedAt time.Time `json:"updated_at"`

	// Modules maps module names to their last-known records.
	Modules map[string]*ModuleRecord `json:"modules"`
}

// NewDeploymentState creates an empty state record for a deployment.
func NewDeploymentState(deploymentID string) *DeploymentState {
	return &DeploymentState{
		DeploymentID: deploymentID,
		Modules:      make(map[string]*ModuleRecord),
	}
}

// Record returns the record for a module, or an unprovisioned placeholder if
// the module has never been seen.
func (s *DeploymentState) Record(module string) *ModuleRecord {
	if r, ok := s.Modules[module]; ok {
		return r
	}
	return &ModuleRecord{Status: ModuleStatusUnprovisioned}
}

// SetRecord stores the record for a module.
func (s *DeploymentState) SetRecord(module string, r *ModuleRecord) {
	if s.Modules == nil {
		s.Modules = make(map[string]*ModuleRecord)
	}
	s.Modules[module] = r
}

// ModuleRecord is the persisted status of one module.
type ModuleRecord struct {
	// Status is the last-known provisioning status.
	Status ModuleStatus `json:"status"`

	// ConfigHash is the hash of the resolved input set recorded at the last
	// successful provisioning. A mismatch against the declared configuration
	// marks the module for re-provisioning.
	ConfigHash string `json:"config_hash,omitempty"`

	// Outputs are the values the module published for downstream consumers.
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Error is the engine-reported detail of the last failure, if any.
	Error string `json:"error,omitempty"`

	// ProvisionedAt is when the module was last provisioned successfully.
	ProvisionedAt time.Time `json:"provisioned_at,omitempty"`
}

// ChangePlan is the computed diff between the declared modules and the
// current state. Created fresh per invocation and discarded after apply or
// cancellation; never persisted across runs.
type ChangePlan struct {
	// ID is the unique identifier of this plan.
	ID string `json:"id"`

	// DeploymentID is the deployment this plan was computed for.
	DeploymentID string `json:"deployment_id"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Actions lists one entry per enabled module, in resolved order.
	Actions []PlannedAction `json:"actions"`

	// Summary provides counts by action type.
	Summary PlanSummary `json:"summary"`
}

// IsEmpty returns true if the plan schedules no mutation.
func (p *ChangePlan) IsEmpty() bool {
	return p.Summary.Create == 0 && p.Summary.Update == 0 && p.Summary.Destroy == 0
}

// MutatingActions returns the actions that change infrastructure, in order.
func (p *ChangePlan) MutatingActions() []PlannedAction {
	actions := make([]PlannedAction, 0, len(p.Actions))
	for _, a := range p.Actions {
		if a.Action.IsMutating() {
			actions = append(actions, a)
		}
	}
	return actions
}

// PlannedAction is one module's entry in a change plan.
type PlannedAction struct {
	// Module is the module name.
	Module string `json:"module"`

	// Action is the scheduled operation.
	Action ActionType `json:"action"`

	// Reason explains why the action was scheduled (e.g., "not yet
	// provisioned", "configuration changed").
	Reason string `json:"reason,omitempty"`

	// ConfigHash is the hash of the module's declared configuration at plan
	// time, recorded into state after a successful apply.
	ConfigHash string `json:"config_hash,omitempty"`
}

// PlanSummary provides counts of scheduled actions.
type PlanSummary struct {
	// Create is the number of modules to provision for the first time.
	Create int `json:"create"`

	// Update is the number of modules to re-provision.
	Update int `json:"update"`

	// Destroy is the number of modules to deprovision.
	Destroy int `json:"destroy"`

	// Noop is the number of modules already converged.
	Noop int `json:"no_op"`
}

// Run describes one orchestration run for the journal and status surfaces.
type Run struct {
	// ID is the unique identifier of this run.
	ID string `json:"id"`

	// DeploymentID is the deployment the run operated on.
	DeploymentID string `json:"deployment_id"`

	// Operation is "apply" or "destroy".
	Operation string `json:"operation"`

	// Phase is the terminal phase the run reached.
	Phase RunPhase `json:"phase"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal phase.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error is the failure detail, if the run failed.
	Error string `json:"error,omitempty"`
}

// ApplyResult is the outcome of an Apply run.
type ApplyResult struct {
	// RunID identifies the run in the journal.
	RunID string `json:"run_id"`

	// Phase is the terminal phase: Succeeded, Failed, or Cancelled.
	Phase RunPhase `json:"phase"`

	// Plan is the change plan the run executed (or declined).
	Plan *ChangePlan `json:"plan"`

	// Applied lists the modules provisioned in this run, in order.
	Applied []string `json:"applied,omitempty"`

	// FailedModule names the module whose provisioning halted the run.
	FailedModule string `json:"failed_module,omitempty"`
}

// DestroyResult is the outcome of a teardown run.
type DestroyResult struct {
	// RunID identifies the run in the journal.
	RunID string `json:"run_id"`

	// Phase is the terminal phase: Succeeded, Failed, or Cancelled.
	Phase RunPhase `json:"phase"`

	// Destroyed lists modules deprovisioned in this run, in reverse resolved
	// order. Already-absent modules are included (idempotent no-ops).
	Destroyed []string `json:"destroyed,omitempty"`

	// CleanupWarnings lists out-of-band artifact cleanups that failed.
	// Cleanup failures never abort the teardown.
	CleanupWarnings []string `json:"cleanup_warnings,omitempty"`
}

// VerificationReport is the result of post-deploy checks. The report, not a
// boolean, is the verifier's output; callers decide pass/fail policy.
type VerificationReport struct {
	// DeploymentID is the deployment that was verified.
	DeploymentID string `json:"deployment_id"`

	// StartedAt is when verification began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when verification finished.
	CompletedAt time.Time `json:"completed_at"`

	// Checks lists one entry per executed check, in execution order.
	Checks []CheckResult `json:"checks"`
}

// Outcome returns the aggregate outcome: fail if any check failed, warn if
// any check warned, pass otherwise.
func (r *VerificationReport) Outcome() CheckOutcome {
	outcome := CheckPass
	for _, c := range r.Checks {
		switch c.Outcome {
		case CheckFail:
			return CheckFail
		case CheckWarn:
			outcome = CheckWarn
		}
	}
	return outcome
}

// CheckResult is one named check's entry in a verification report.
type CheckResult struct {
	// Name identifies the check (e.g., "readiness", "smoke_test").
	Name string `json:"name"`

	// Outcome is pass, fail, or warn.
	Outcome CheckOutcome `json:"outcome"`

	// Detail is free-form human-readable detail.
	Detail string `json:"detail,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`
}
