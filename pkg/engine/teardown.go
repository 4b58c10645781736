package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Destroy tears the deployment down in reverse provisioning order. Teardown
// is idempotent: already-absent modules are skipped as no-ops, and a fresh
// teardown over a torn-down deployment succeeds without effect. Artifact
// cleanup runs after the modules and only ever produces warnings.
func (o *Orchestrator) Destroy(ctx context.Context, deploymentID string, modules []Module, cleaner ArtifactCleaner) (*DestroyResult, error) {
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
		Operation:    "destroy",
		StartedAt:    time.Now().UTC(),
	}

	o.phase = PhasePlanning
	state, err := o.store.Load(deploymentID)
	if err != nil {
		return nil, o.finishRun(ctx, run, PhaseFailed, err)
	}

	plan, err := o.planner.BuildDestroyPlan(deploymentID, modules, state)
	if err != nil {
		return nil, o.finishRun(ctx, run, PhaseFailed, err)
	}

	result := &DestroyResult{RunID: run.ID}

	if plan.IsEmpty() {
		o.logger.Info().Str("deployment", deploymentID).Msg("Nothing to destroy")
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
		o.logger.Info().Str("deployment", deploymentID).Msg("Teardown declined by operator")
		result.Phase = PhaseCancelled
		o.finishRun(ctx, run, PhaseCancelled, nil)
		return result, nil
	}

	o.phase = PhaseApplying
	index := indexModules(modules)
	for _, action := range plan.Actions {
		if action.Action != ActionDestroy {
			o.recordModule(ctx, run.ID, action.Module, action.Action, ModuleStatusDestroyed, "not present")
			continue
		}

		m := index[action.Module]
		if err := o.destroyModule(ctx, run.ID, state, m); err != nil {
			result.Phase = PhaseFailed
			return result, o.finishRun(ctx, run, PhaseFailed, err)
		}
		result.Destroyed = append(result.Destroyed, action.Module)
	}

	if cleaner != nil {
		result.CleanupWarnings = cleaner.Cleanup(ctx, deploymentID)
		for _, w := range result.CleanupWarnings {
			o.logger.Warn().Str("deployment", deploymentID).Msg("Artifact cleanup: " + w)
		}
	}

	result.Phase = PhaseSucceeded
	o.finishRun(ctx, run, PhaseSucceeded, nil)
	return result, nil
}

// destroyModule deprovisions one module and checkpoints state.
func (o *Orchestrator) destroyModule(ctx context.Context, runID string, state *DeploymentState, m *Module) error {
	logger := o.logger.With().Str("module", m.Name).Logger()
	logger.Info().Msg("Destroying module")

	req := ModuleRequest{
		DeploymentID: state.DeploymentID,
		Module:       m.Name,
		Source:       m.Source,
	}

	if _, err := o.provisioner.Destroy(ctx, req); err != nil {
		record := state.Record(m.Name)
		state.SetRecord(m.Name, &ModuleRecord{
			Status:     ModuleStatusFailed,
			ConfigHash: record.ConfigHash,
			Outputs:    record.Outputs,
			Error:      err.Error(),
		})
		if serr := o.store.Save(state); serr != nil {
			logger.Error().Err(serr).Msg("Failed to checkpoint state after destroy failure")
		}
		o.recordModule(ctx, runID, m.Name, ActionDestroy, ModuleStatusFailed, err.Error())

		if IsProvisioning(err) {
			return err
		}
		return NewProvisioningError(fmt.Sprintf("destroy of module %s failed", m.Name), err).
			WithModule(m.Name).WithPhase(PhaseApplying).WithCode(ErrCodeEngineFailed)
	}

	state.SetRecord(m.Name, &ModuleRecord{Status: ModuleStatusDestroyed})
	if err := o.store.Save(state); err != nil {
		return err
	}

	o.recordModule(ctx, runID, m.Name, ActionDestroy, ModuleStatusDestroyed, "")
	logger.Info().Msg("Module destroyed")
	return nil
}
