package policy

// GetBuiltinPolicies returns all built-in admission policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		moduleNamingPolicy(),
		changeBudgetPolicy(),
		destroyReviewPolicy(),
	}
}

// moduleNamingPolicy enforces module naming conventions.
func moduleNamingPolicy() Policy {
	return Policy{
		Name:        "module-naming",
		Description: "Enforces module naming conventions (lowercase, alphanumeric, underscores only)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package modelship.policies.naming

import rego.v1

# Module names must be lowercase alphanumeric with underscores
deny contains violation if {
	some action in input.plan.actions
	not regex.match("^[a-z0-9_]+$", action.module)
	violation := {
		"message": sprintf("Module name '%s' must be lowercase alphanumeric with underscores", [action.module]),
		"severity": "error",
		"module": action.module,
	}
}
`,
	}
}

// changeBudgetPolicy denies plans whose mutation count suggests a
// misconfigured deployment rather than an intentional rollout.
func changeBudgetPolicy() Policy {
	return Policy{
		Name:        "change-budget",
		Description: "Denies plans that mutate more than 25 modules in a single run",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "blast-radius"},
		Rego: `package modelship.policies.budget

import rego.v1

max_mutations := 25

deny contains violation if {
	summary := input.plan.summary
	total := summary.create + summary.update + summary.destroy
	total > max_mutations
	violation := {
		"message": sprintf("Plan mutates %d modules, exceeding the budget of %d", [total, max_mutations]),
		"severity": "error",
	}
}
`,
	}
}

// destroyReviewPolicy flags destructive actions for operator review.
func destroyReviewPolicy() Policy {
	return Policy{
		Name:        "destroy-review",
		Description: "Warns on every destroy action so operators review deprovisioning explicitly",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety", "teardown"},
		Rego: `package modelship.policies.teardown

import rego.v1

deny contains violation if {
	some action in input.plan.actions
	action.action == "destroy"
	violation := {
		"message": sprintf("Module '%s' will be destroyed", [action.module]),
		"severity": "warning",
		"module": action.module,
	}
}
`,
	}
}
