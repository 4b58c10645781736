package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Orchestrator drives deployment runs through the plan, confirm, apply
// lifecycle. Runs are strictly sequential: one module at a time, state
// checkpointed after every module, no automatic retries. The only
// suspension point is the confirmation gate.
type Orchestrator struct {
	planner     *Planner
	provisioner Provisioner
	store       StateStore
	locker      Locker
	confirmer   Confirmer
	journal     Journal
	policy      PolicyEvaluator
	logger      zerolog.Logger

	lockTimeout time.Duration
	phase       RunPhase
}

// OrchestratorOptions configures an orchestrator. Provisioner, StateStore,
// Locker, and Confirmer are required; Journal and Policy are optional.
type OrchestratorOptions struct {
	Provisioner Provisioner
	Store       StateStore
	Locker      Locker
	Confirmer   Confirmer
	Journal     Journal
	Policy      PolicyEvaluator
	Logger      zerolog.Logger

	// LockTimeout bounds how long Apply and Destroy wait for the
	// deployment lock before failing with a lock error.
	LockTimeout time.Duration
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Provisioner == nil {
		return nil, NewConfigurationError("orchestrator requires a provisioner", nil)
	}
	if opts.Store == nil {
		return nil, NewConfigurationError("orchestrator requires a state store", nil)
	}
	if opts.Locker == nil {
		return nil, NewConfigurationError("orchestrator requires a locker", nil)
	}
	if opts.Confirmer == nil {
		return nil, NewConfigurationError("orchestrator requires a confirmer", nil)
	}

	return &Orchestrator{
		planner:     NewPlanner(opts.Logger),
		provisioner: opts.Provisioner,
		store:       opts.Store,
		locker:      opts.Locker,
		confirmer:   opts.Confirmer,
		journal:     opts.Journal,
		policy:      opts.Policy,
		logger:      opts.Logger.With().Str("component", "orchestrator").Logger(),
		lockTimeout: opts.LockTimeout,
		phase:       PhaseIdle,
	}, nil
}

// Phase returns the orchestrator's current lifecycle phase.
func (o *Orchestrator) Phase() RunPhase {
	return o.phase
}

// Plan computes a change plan without mutating anything. Plan does not take
// the deployment lock; it reads whatever state is current.
func (o *Orchestrator) Plan(ctx context.Context, deploymentID string, modules []Module) (*ChangePlan, error) {
	o.phase = PhasePlanning
	defer func() { o.phase = PhaseIdle }()

	state, err := o.store.Load(deploymentID)
	if err != nil {
		return nil, err
	}

	return o.planner.BuildPlan(deploymentID, modules, state)
}

// Apply runs the full lifecycle: lock, plan, policy admission, confirmation,
// then sequential provisioning with a state checkpoint after every module.
// The first module failure halts the run; already-provisioned modules keep
// their state so a later run resumes from the failure point.
func (o *Orchestrator) Apply(ctx context.Context, deploymentID string, modules []Module) (*ApplyResult, error) {
	lease, err := o.locker.Acquire(ctx, deploymentID, o.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil {
			o.logger.Warn().Err(rerr).Str("deployment", deploymentID).Msg("Failed to release deployment lock")
		}
	}()

	run := &Run{
		ID:           uuid.New().String(),
		DeploymentID: deploymentID,
		Operation:    "apply",
		StartedAt:    time.Now().UTC(),
	}

	o.phase = PhasePlanning
	state, err := o.store.Load(deploymentID)
	if err != nil {
		return nil, o.finishRun(ctx, run, PhaseFailed, err)
	}

	plan, err := o.planner.BuildPlan(deploymentID, modules, state)
	if err != nil {
		return nil, o.finishRun(ctx, run, PhaseFailed, err)
	}

	result := &ApplyResult{RunID: run.ID, Plan: plan}

	if err := o.admitPlan(ctx, plan); err != nil {
		return nil, o.finishRun(ctx, run, PhaseFailed, err)
	}

	// An empty plan succeeds without the confirmation gate; there is
	// nothing to confirm.
	if plan.IsEmpty() {
		o.logger.Info().Str("deployment", deploymentID).Msg("No changes; deployment already converged")
		result.Phase = PhaseSucceeded
		o.finishRun(ctx, run, PhaseSucceeded, nil)
		return result, nil
	}

	o.phase = PhaseAwaitingConfirmation
	confirmed, err := o.confirmer.Confirm(ctx, plan)
	if err != nil {
		return nil, o.finishRun(ctx, run, PhaseFailed, err)
	}
	if !confirmed {
		// Declined plans leave state untouched; nothing was written between
		// plan and this point.
		o.logger.Info().Str("deployment", deploymentID).Msg("Plan declined by operator")
		result.Phase = PhaseCancelled
		o.finishRun(ctx, run, PhaseCancelled, nil)
		return result, nil
	}

	o.phase = PhaseApplying
	index := indexModules(modules)
	for _, action := range plan.Actions {
		if !action.Action.IsMutating() {
			o.recordModule(ctx, run.ID, action.Module, action.Action, ModuleStatusProvisioned, "already converged")
			continue
		}

		if err := ctx.Err(); err != nil {
			failErr := NewProvisioningError("run interrupted", err).WithModule(action.Module).WithPhase(PhaseApplying)
			result.Phase = PhaseFailed
			result.FailedModule = action.Module
			return result, o.finishRun(ctx, run, PhaseFailed, failErr)
		}

		m := index[action.Module]
		if err := o.applyModule(ctx, run.ID, state, m, action); err != nil {
			result.Phase = PhaseFailed
			result.FailedModule = action.Module
			return result, o.finishRun(ctx, run, PhaseFailed, err)
		}
		result.Applied = append(result.Applied, action.Module)
	}

	result.Phase = PhaseSucceeded
	o.finishRun(ctx, run, PhaseSucceeded, nil)
	return result, nil
}

// applyModule provisions one module and checkpoints state. State is written
// after success and after failure, so a crash mid-run loses at most the
// module in flight.
func (o *Orchestrator) applyModule(ctx context.Context, runID string, state *DeploymentState, m *Module, action PlannedAction) error {
	logger := o.logger.With().Str("module", m.Name).Logger()
	logger.Info().Str("action", string(action.Action)).Msg("Provisioning module")

	inputs, err := resolveInputs(m, state)
	if err != nil {
		return err
	}

	req := ModuleRequest{
		DeploymentID: state.DeploymentID,
		Module:       m.Name,
		Source:       m.Source,
		Inputs:       inputs,
	}

	res, err := o.provisioner.Apply(ctx, req)
	if err != nil {
		record := state.Record(m.Name)
		state.SetRecord(m.Name, &ModuleRecord{
			Status:     ModuleStatusFailed,
			ConfigHash: record.ConfigHash,
			Outputs:    record.Outputs,
			Error:      err.Error(),
		})
		if serr := o.store.Save(state); serr != nil {
			logger.Error().Err(serr).Msg("Failed to checkpoint state after module failure")
		}
		o.recordModule(ctx, runID, m.Name, action.Action, ModuleStatusFailed, err.Error())

		if IsProvisioning(err) {
			return err
		}
		return NewProvisioningError(fmt.Sprintf("module %s failed", m.Name), err).
			WithModule(m.Name).WithPhase(PhaseApplying).WithCode(ErrCodeEngineFailed)
	}

	state.SetRecord(m.Name, &ModuleRecord{
		Status:        ModuleStatusProvisioned,
		ConfigHash:    action.ConfigHash,
		Outputs:       res.Outputs,
		ProvisionedAt: time.Now().UTC(),
	})
	if err := o.store.Save(state); err != nil {
		// The module is live but unrecorded; treat as a run failure so the
		// operator notices before anything builds on top of it.
		return err
	}

	o.recordModule(ctx, runID, m.Name, action.Action, ModuleStatusProvisioned, res.Summary)
	logger.Info().Msg("Module provisioned")
	return nil
}

// admitPlan runs policy admission when a policy engine is configured.
func (o *Orchestrator) admitPlan(ctx context.Context, plan *ChangePlan) error {
	if o.policy == nil {
		return nil
	}

	decision, err := o.policy.EvaluatePlan(ctx, plan)
	if err != nil {
		return err
	}
	for _, w := range decision.Warnings {
		o.logger.Warn().Str("plan_id", plan.ID).Msg("Policy warning: " + w)
	}
	if !decision.Allowed {
		return NewConfigurationError(
			fmt.Sprintf("plan denied by policy: %v", decision.Denials), nil,
		).WithCode(ErrCodePolicyDenied)
	}
	return nil
}

// finishRun transitions to a terminal phase and records the run. The passed
// error is returned unchanged so callers can propagate it.
func (o *Orchestrator) finishRun(ctx context.Context, run *Run, phase RunPhase, err error) error {
	o.phase = phase
	run.Phase = phase
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err != nil {
		run.Error = err.Error()
	}

	if o.journal != nil {
		if jerr := o.journal.RecordRun(ctx, run); jerr != nil {
			o.logger.Warn().Err(jerr).Str("run", run.ID).Msg("Failed to journal run")
		}
	}
	return err
}

// recordModule journals one module outcome, ignoring journal failures.
func (o *Orchestrator) recordModule(ctx context.Context, runID, module string, action ActionType, status ModuleStatus, detail string) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordModule(ctx, runID, module, action, status, detail); err != nil {
		o.logger.Warn().Err(err).Str("module", module).Msg("Failed to journal module outcome")
	}
}

// indexModules maps module names to declarations.
func indexModules(modules []Module) map[string]*Module {
	index := make(map[string]*Module, len(modules))
	for i := range modules {
		index[modules[i].Name] = &modules[i]
	}
	return index
}
