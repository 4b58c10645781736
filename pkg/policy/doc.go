// Package policy evaluates Rego rules against change plans before they
// reach the confirmation gate. Policies with error or critical severity
// deny the plan; lower severities surface as warnings.
package policy
