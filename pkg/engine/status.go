package engine

import (
	"encoding/json"
	"fmt"
)

// ModuleStatus represents the last recorded provisioning status of a module.
type ModuleStatus string

const (
	// ModuleStatusUnprovisioned indicates the module has never been provisioned.
	ModuleStatusUnprovisioned ModuleStatus = "unprovisioned"

	// ModuleStatusProvisioned indicates the module was provisioned successfully.
	ModuleStatusProvisioned ModuleStatus = "provisioned"

	// ModuleStatusFailed indicates the last provisioning attempt failed.
	ModuleStatusFailed ModuleStatus = "failed"

	// ModuleStatusDestroyed indicates the module was deprovisioned.
	ModuleStatusDestroyed ModuleStatus = "destroyed"
)

// Validate checks if the module status is valid.
func (s ModuleStatus) Validate() error {
	switch s {
	case ModuleStatusUnprovisioned, ModuleStatusProvisioned,
		ModuleStatusFailed, ModuleStatusDestroyed:
		return nil
	default:
		return fmt.Errorf("invalid module status: %s", s)
	}
}

// ActionType represents the operation a change plan schedules for a module.
type ActionType string

const (
	// ActionCreate indicates the module will be provisioned for the first time.
	ActionCreate ActionType = "create"

	// ActionUpdate indicates the module will be re-provisioned because its
	// configuration changed or a previous attempt failed.
	ActionUpdate ActionType = "update"

	// ActionNoop indicates the module is already converged.
	ActionNoop ActionType = "no-op"

	// ActionDestroy indicates the module will be deprovisioned.
	ActionDestroy ActionType = "destroy"
)

// IsMutating returns true if the action changes infrastructure.
func (a ActionType) IsMutating() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDestroy
}

// Validate checks if the action type is valid.
func (a ActionType) Validate() error {
	switch a {
	case ActionCreate, ActionUpdate, ActionNoop, ActionDestroy:
		return nil
	default:
		return fmt.Errorf("invalid action type: %s", a)
	}
}

// RunPhase represents the orchestrator state machine phase.
type RunPhase string

const (
	// PhaseIdle indicates no run is in progress.
	PhaseIdle RunPhase = "idle"

	// PhasePlanning indicates the change plan is being computed.
	PhasePlanning RunPhase = "planning"

	// PhaseAwaitingConfirmation indicates the plan is rendered and the
	// orchestrator is blocked on the operator's response.
	PhaseAwaitingConfirmation RunPhase = "awaiting_confirmation"

	// PhaseApplying indicates modules are being provisioned.
	PhaseApplying RunPhase = "applying"

	// PhaseSucceeded indicates the run completed with every module converged.
	PhaseSucceeded RunPhase = "succeeded"

	// PhaseFailed indicates a module's provisioning failed and the run halted.
	PhaseFailed RunPhase = "failed"

	// PhaseCancelled indicates the operator declined the plan. No mutation
	// was performed; distinct from PhaseFailed.
	PhaseCancelled RunPhase = "cancelled"
)

// IsTerminal returns true if the phase represents a final state.
func (p RunPhase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseCancelled
}

// Validate checks if the run phase is valid.
func (p RunPhase) Validate() error {
	switch p {
	case PhaseIdle, PhasePlanning, PhaseAwaitingConfirmation,
		PhaseApplying, PhaseSucceeded, PhaseFailed, PhaseCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run phase: %s", p)
	}
}

// CheckOutcome represents the outcome of a single post-deploy check.
type CheckOutcome string

const (
	// CheckPass indicates the check succeeded.
	CheckPass CheckOutcome = "pass"

	// CheckFail indicates the check failed.
	CheckFail CheckOutcome = "fail"

	// CheckWarn indicates the check produced a non-blocking warning.
	CheckWarn CheckOutcome = "warn"
)

// Validate checks if the check outcome is valid.
func (o CheckOutcome) Validate() error {
	switch o {
	case CheckPass, CheckFail, CheckWarn:
		return nil
	default:
		return fmt.Errorf("invalid check outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ModuleStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ModuleStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ModuleStatus(str)
	return s.Validate()
}
