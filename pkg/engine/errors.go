// Package engine provides the deployment orchestration core: dependency
// resolution, change planning, the confirmation gate, provisioning execution,
// and teardown coordination.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies orchestration errors by the phase and recovery policy
// they belong to.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates an invalid deployment declaration
	// (cyclic graph, missing required input). Fatal, surfaced before any
	// mutation.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassLock indicates the deployment lock could not be acquired.
	// Fatal to the current run; state untouched.
	ErrorClassLock ErrorClass = "lock"

	// ErrorClassProvisioning indicates a module's apply failed. Remaining
	// modules in the run are halted; state is preserved up to the failure.
	ErrorClassProvisioning ErrorClass = "provisioning"

	// ErrorClassVerification indicates post-deploy checks could not confirm
	// the service is serving. Infrastructure exists but is not usable.
	ErrorClassVerification ErrorClass = "verification"

	// ErrorClassCleanup indicates an out-of-band artifact cleanup failed
	// during teardown. Logged, never fatal.
	ErrorClassCleanup ErrorClass = "cleanup"
)

// Error is a classified orchestration error with module and phase context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Module is the module that caused the error, if applicable.
	Module string `json:"module,omitempty"`

	// Phase is the run phase during which the error occurred.
	Phase RunPhase `json:"phase,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Module != "" && e.Phase != "" {
		return fmt.Sprintf("[%s] %s (module=%s, phase=%s)%s",
			e.Class, e.Message, e.Module, e.Phase, e.unwrapSuffix())
	}
	if e.Module != "" {
		return fmt.Sprintf("[%s] %s (module=%s)%s", e.Class, e.Message, e.Module, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithModule adds module context to an error.
func (e *Error) WithModule(module string) *Error {
	e.Module = module
	return e
}

// WithPhase adds phase context to an error.
func (e *Error) WithPhase(phase RunPhase) *Error {
	e.Phase = phase
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewLockError creates a new lock error.
func NewLockError(message string, err error) *Error {
	return &Error{Class: ErrorClassLock, Message: message, Err: err}
}

// NewProvisioningError creates a new provisioning error.
func NewProvisioningError(message string, err error) *Error {
	return &Error{Class: ErrorClassProvisioning, Message: message, Err: err}
}

// NewVerificationError creates a new verification error.
func NewVerificationError(message string, err error) *Error {
	return &Error{Class: ErrorClassVerification, Message: message, Err: err}
}

// NewCleanupWarning creates a new cleanup warning.
func NewCleanupWarning(message string, err error) *Error {
	return &Error{Class: ErrorClassCleanup, Message: message, Err: err}
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool { return hasClass(err, ErrorClassConfiguration) }

// IsLock returns true if the error is a lock error.
func IsLock(err error) bool { return hasClass(err, ErrorClassLock) }

// IsProvisioning returns true if the error is a provisioning error.
func IsProvisioning(err error) bool { return hasClass(err, ErrorClassProvisioning) }

// IsVerification returns true if the error is a verification error.
func IsVerification(err error) bool { return hasClass(err, ErrorClassVerification) }

// IsCleanup returns true if the error is a cleanup warning.
func IsCleanup(err error) bool { return hasClass(err, ErrorClassCleanup) }

// Common error codes.
const (
	ErrCodeCycle         = "CYCLIC_DEPENDENCY"
	ErrCodeMissingInput  = "MISSING_INPUT"
	ErrCodeDuplicate     = "DUPLICATE_MODULE"
	ErrCodeUnknownModule = "UNKNOWN_MODULE"
	ErrCodeLockTimeout   = "LOCK_TIMEOUT"
	ErrCodeLockHeld      = "LOCK_HELD_BY_OTHER"
	ErrCodeEngineFailed  = "ENGINE_FAILED"
	ErrCodeNotReady      = "READINESS_TIMEOUT"
	ErrCodePolicyDenied  = "POLICY_DENIED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// CyclicDependencyError reports that the declared module edges contain a
// cycle. It names the participating modules so the operator can break it.
type CyclicDependencyError struct {
	// Modules are the module names participating in the cycle, in path order.
	Modules []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic module dependency: %s", strings.Join(e.Modules, " -> "))
}

// IsCyclicDependency returns true if the error chain contains a
// CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	var e *CyclicDependencyError
	return errors.As(err, &e)
}
