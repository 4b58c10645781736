package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// Engine evaluates admission policies against change plans. It implements
// engine.PolicyEvaluator.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, p := range GetBuiltinPolicies() {
		policy := p
		if err := e.compileAndStorePolicy(&policy); err != nil {
			return nil, fmt.Errorf("failed to load built-in policy %s: %w", p.Name, err)
		}
	}

	return e, nil
}

// EvaluatePlan evaluates all enabled policies against a plan. Violations at
// error or critical severity deny the plan; the rest surface as warnings.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.ChangePlan) (*engine.PolicyDecision, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	operation := "apply"
	if plan.Summary.Destroy > 0 && plan.Summary.Create == 0 && plan.Summary.Update == 0 {
		operation = "destroy"
	}

	input := &Input{
		Plan: plan,
		Context: &EvalContext{
			Timestamp: startTime,
			Operation: operation,
		},
	}

	decision := &engine.PolicyDecision{Allowed: true}

	for _, name := range e.sortedPolicyNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("plan", plan.ID).
				Msg("Policy evaluation failed")
			decision.Warnings = append(decision.Warnings,
				fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				decision.Allowed = false
				decision.Denials = append(decision.Denials, v.String())
			} else {
				decision.Warnings = append(decision.Warnings, v.String())
			}
		}
	}

	e.logger.Debug().
		Str("plan_id", plan.ID).
		Bool("allowed", decision.Allowed).
		Int("denials", len(decision.Denials)).
		Int("warnings", len(decision.Warnings)).
		Dur("duration", time.Since(startTime)).
		Msg("Plan policy evaluation completed")

	return decision, nil
}

// LoadPolicies loads additional policies from the given file or directory
// paths, replacing any loaded policy with the same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	return e.ReplacePolicies(policies)
}

// ReplacePolicies compiles and stores the given policies, overwriting any
// existing policies with the same names. Built-in policies stay loaded
// unless explicitly overridden.
func (e *Engine) ReplacePolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded")

	return nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedPolicyNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// SetPolicyEnabled toggles a loaded policy by name.
func (e *Engine) SetPolicyEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// evaluatePolicy runs a single policy's deny query against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	packageName := extractPackageName(cp.policy.Rego)
	query := fmt.Sprintf("data.%s.deny", packageName)

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.createViolation(cp.policy, d))
		}
	}

	return violations, nil
}

// createViolation builds a Violation from a single deny result, which may
// be a bare string or a map with message, severity, and module keys.
func (e *Engine) createViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if module, ok := v["module"].(string); ok {
			violation.Module = module
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	if violation.Message == "" {
		violation.Message = "policy violation"
	}

	return violation
}

// compileAndStorePolicy parses the policy's Rego and stores it. Callers
// must hold the write lock except during construction.
func (e *Engine) compileAndStorePolicy(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("severity", string(policy.Severity)).
		Msg("Policy compiled")

	return nil
}

// sortedPolicyNames returns policy names in stable order so evaluation
// output is deterministic. Callers must hold at least the read lock.
func (e *Engine) sortedPolicyNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "modelship.policies"
}
