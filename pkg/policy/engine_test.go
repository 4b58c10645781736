package policy

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

func testPlan(actions ...engine.PlannedAction) *engine.ChangePlan {
	plan := &engine.ChangePlan{
		ID:           "plan-test",
		DeploymentID: "fraud-detection",
		CreatedAt:    time.Now(),
		Actions:      actions,
	}
	for _, a := range actions {
		switch a.Action {
		case engine.ActionCreate:
			plan.Summary.Create++
		case engine.ActionUpdate:
			plan.Summary.Update++
		case engine.ActionDestroy:
			plan.Summary.Destroy++
		default:
			plan.Summary.Noop++
		}
	}
	return plan
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("no built-in policies loaded")
	}

	expected := []string{"module-naming", "change-budget", "destroy-review"}
	for _, want := range expected {
		found := false
		for _, p := range policies {
			if p.Name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected built-in policy not found: %s", want)
		}
	}
}

func TestEvaluatePlanAllowsCleanPlan(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	plan := testPlan(
		engine.PlannedAction{Module: "storage", Action: engine.ActionCreate},
		engine.PlannedAction{Module: "model_endpoint", Action: engine.ActionCreate},
	)

	decision, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected plan to be allowed, denials: %v", decision.Denials)
	}
	if len(decision.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", decision.Warnings)
	}
}

func TestEvaluatePlanDeniesBadModuleName(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	plan := testPlan(
		engine.PlannedAction{Module: "Model-Endpoint", Action: engine.ActionCreate},
	)

	decision, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected plan to be denied")
	}
	if len(decision.Denials) != 1 {
		t.Fatalf("expected 1 denial, got %v", decision.Denials)
	}
	if !strings.Contains(decision.Denials[0], "Model-Endpoint") {
		t.Errorf("denial should name the module, got %q", decision.Denials[0])
	}
}

func TestEvaluatePlanDeniesOversizedPlan(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	var actions []engine.PlannedAction
	for i := 0; i < 30; i++ {
		actions = append(actions, engine.PlannedAction{
			Module: fmt.Sprintf("module_%d", i),
			Action: engine.ActionCreate,
		})
	}

	decision, err := eng.EvaluatePlan(context.Background(), testPlan(actions...))
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected oversized plan to be denied")
	}

	found := false
	for _, d := range decision.Denials {
		if strings.Contains(d, "change-budget") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected change-budget denial, got %v", decision.Denials)
	}
}

func TestEvaluatePlanWarnsOnDestroy(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	plan := testPlan(
		engine.PlannedAction{Module: "alerts", Action: engine.ActionDestroy},
		engine.PlannedAction{Module: "storage", Action: engine.ActionDestroy},
	)

	decision, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("destroy warnings must not deny the plan, denials: %v", decision.Denials)
	}
	if len(decision.Warnings) != 2 {
		t.Fatalf("expected 2 destroy warnings, got %v", decision.Warnings)
	}
	for _, w := range decision.Warnings {
		if !strings.Contains(w, "destroy-review") {
			t.Errorf("warning should name the policy, got %q", w)
		}
	}
}

func TestSetPolicyEnabled(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := eng.SetPolicyEnabled("destroy-review", false); err != nil {
		t.Fatalf("SetPolicyEnabled failed: %v", err)
	}

	plan := testPlan(engine.PlannedAction{Module: "alerts", Action: engine.ActionDestroy})
	decision, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if len(decision.Warnings) != 0 {
		t.Errorf("disabled policy should not fire, got %v", decision.Warnings)
	}

	if err := eng.SetPolicyEnabled("no-such-policy", true); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestReplacePoliciesOverridesBuiltin(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	custom := Policy{
		Name:     "change-budget",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package modelship.policies.budget

import rego.v1

deny contains violation if {
	summary := input.plan.summary
	summary.create + summary.update + summary.destroy > 1
	violation := {"message": "only one change at a time", "severity": "error"}
}
`,
	}
	if err := eng.ReplacePolicies([]Policy{custom}); err != nil {
		t.Fatalf("ReplacePolicies failed: %v", err)
	}

	plan := testPlan(
		engine.PlannedAction{Module: "storage", Action: engine.ActionCreate},
		engine.PlannedAction{Module: "alerts", Action: engine.ActionCreate},
	)
	decision, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected custom budget policy to deny the plan")
	}
}

func TestReplacePoliciesRejectsInvalidRego(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	bad := Policy{Name: "broken", Enabled: true, Rego: "this is not rego"}
	if err := eng.ReplacePolicies([]Policy{bad}); err == nil {
		t.Fatal("expected compile error for invalid rego")
	}
}

func TestViolationString(t *testing.T) {
	v := Violation{Policy: "change-budget", Message: "too many changes", Severity: SeverityError}
	if got := v.String(); got != "change-budget: too many changes" {
		t.Errorf("unexpected string: %q", got)
	}

	v.Module = "storage"
	if got := v.String(); got != "change-budget: storage: too many changes" {
		t.Errorf("unexpected string with module: %q", got)
	}
}
