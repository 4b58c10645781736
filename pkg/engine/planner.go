package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Planner computes change plans by diffing declared modules against the
// current deployment state.
type Planner struct {
	logger zerolog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(logger zerolog.Logger) *Planner {
	return &Planner{
		logger: logger.With().Str("component", "planner").Logger(),
	}
}

// BuildPlan resolves the module order and computes one action per enabled
// module. The resulting plan lists actions in provisioning order; a fully
// converged deployment yields a plan with only no-op actions.
func (p *Planner) BuildPlan(deploymentID string, modules []Module, state *DeploymentState) (*ChangePlan, error) {
	ordered, err := NewResolver().Resolve(modules)
	if err != nil {
		return nil, err
	}

	plan := &ChangePlan{
		ID:           uuid.New().String(),
		DeploymentID: deploymentID,
		CreatedAt:    time.Now().UTC(),
		Actions:      make([]PlannedAction, 0, len(ordered)),
	}

	for _, m := range ordered {
		action, err := p.planModule(m, state)
		if err != nil {
			return nil, err
		}
		plan.Actions = append(plan.Actions, action)

		switch action.Action {
		case ActionCreate:
			plan.Summary.Create++
		case ActionUpdate:
			plan.Summary.Update++
		case ActionDestroy:
			plan.Summary.Destroy++
		case ActionNoop:
			plan.Summary.Noop++
		}
	}

	p.logger.Debug().
		Str("plan_id", plan.ID).
		Int("create", plan.Summary.Create).
		Int("update", plan.Summary.Update).
		Int("no_op", plan.Summary.Noop).
		Msg("Plan computed")

	return plan, nil
}

// BuildDestroyPlan computes a teardown plan: one destroy action for every
// module present in state, in reverse provisioning order. Modules the state
// has never seen, or already records as destroyed, become no-ops.
func (p *Planner) BuildDestroyPlan(deploymentID string, modules []Module, state *DeploymentState) (*ChangePlan, error) {
	ordered, err := NewResolver().ReverseResolve(modules)
	if err != nil {
		return nil, err
	}

	plan := &ChangePlan{
		ID:           uuid.New().String(),
		DeploymentID: deploymentID,
		CreatedAt:    time.Now().UTC(),
		Actions:      make([]PlannedAction, 0, len(ordered)),
	}

	for _, m := range ordered {
		record := state.Record(m.Name)
		action := PlannedAction{Module: m.Name}

		switch record.Status {
		case ModuleStatusUnprovisioned, ModuleStatusDestroyed:
			action.Action = ActionNoop
			action.Reason = "not present"
			plan.Summary.Noop++
		default:
			// Failed modules may have partial resources; destroy them too.
			action.Action = ActionDestroy
			action.Reason = fmt.Sprintf("currently %s", record.Status)
			plan.Summary.Destroy++
		}

		plan.Actions = append(plan.Actions, action)
	}

	return plan, nil
}

// planModule decides the action for a single module.
func (p *Planner) planModule(m *Module, state *DeploymentState) (PlannedAction, error) {
	hash, err := declaredHash(m)
	if err != nil {
		return PlannedAction{}, err
	}

	action := PlannedAction{
		Module:     m.Name,
		ConfigHash: hash,
	}

	record := state.Record(m.Name)
	switch {
	case isSatisfied(record, hash):
		action.Action = ActionNoop
		action.Reason = "configuration unchanged"
	case record.Status == ModuleStatusFailed:
		action.Action = ActionUpdate
		action.Reason = "previous provisioning failed"
	case record.Status == ModuleStatusProvisioned:
		action.Action = ActionUpdate
		action.Reason = "configuration changed"
	default:
		action.Action = ActionCreate
		action.Reason = "not yet provisioned"
	}

	return action, nil
}

// declaredHash hashes a module's declared configuration. Upstream references
// hash by reference, not by the referenced value, so a module re-plans only
// when its own declaration changes.
func declaredHash(m *Module) (string, error) {
	inputs := make(map[string]interface{}, len(m.Inputs))
	for name, v := range m.Inputs {
		if v.IsReference() {
			inputs[name] = fmt.Sprintf("ref:%s.%s", v.FromModule, v.Output)
		} else {
			inputs[name] = v.Literal
		}
	}
	return ConfigHash(m.Source, inputs)
}
