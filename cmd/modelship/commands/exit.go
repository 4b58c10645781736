package commands

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/modelship/modelship/pkg/engine"
)

// Exit codes distinguish failure classes for scripting.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitCancelled    = 2
	ExitVerification = 3
	ExitLock         = 4
)

// ErrCancelled reports that the operator declined the plan. It maps to its
// own exit code so wrappers can tell a declined run from a failed one.
var ErrCancelled = errors.New("run cancelled by operator")

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCancelled):
		log.Warn().Msg(err.Error())
		return ExitCancelled
	case engine.IsLock(err):
		log.Error().Err(err).Msg("Deployment is locked")
		return ExitLock
	case engine.IsVerification(err):
		log.Error().Err(err).Msg("Verification failed")
		return ExitVerification
	default:
		log.Error().Err(err).Msg("Command execution failed")
		return ExitFailure
	}
}
