package policy

import (
	"time"

	"github.com/modelship/modelship/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block the plan.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that deny the plan.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that deny the plan and must be
	// addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation at this severity denies the plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a single admission rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set
	// their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation represents a single policy violation against a plan.
type Violation struct {
	// Policy is the name of the policy that fired.
	Policy string `json:"policy"`

	// Module is the module the violation applies to, when known.
	Module string `json:"module,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// String renders the violation the way it appears in plan output.
func (v Violation) String() string {
	if v.Module != "" {
		return v.Policy + ": " + v.Module + ": " + v.Message
	}
	return v.Policy + ": " + v.Message
}

// Input is the document handed to every Rego query as input.
type Input struct {
	// Plan is the change plan under admission.
	Plan *engine.ChangePlan `json:"plan"`

	// Context carries evaluation metadata.
	Context *EvalContext `json:"context"`
}

// EvalContext provides evaluation context to policies.
type EvalContext struct {
	// Timestamp is when the evaluation started.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the operation being admitted, "apply" or "destroy".
	Operation string `json:"operation"`
}
