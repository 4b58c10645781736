// Package state persists deployment state and guards it with a file lock.
// State writes are atomic and versioned; the lock admits one mutating run
// per deployment at a time.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// FileStore persists deployment state as JSON files, one per deployment.
// Writes go to a temp file in the same directory and are renamed into
// place, so a crashed write never corrupts the previous state.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, engine.NewConfigurationError("state directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to create state directory %s", dir), err)
	}

	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "state").Logger(),
	}, nil
}

// Load reads the current state for a deployment. A deployment with no state
// file loads as an empty state.
func (s *FileStore) Load(deploymentID string) (*engine.DeploymentState, error) {
	data, err := os.ReadFile(s.statePath(deploymentID))
	if os.IsNotExist(err) {
		return engine.NewDeploymentState(deploymentID), nil
	}
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to read state for %s", deploymentID), err)
	}

	state := &engine.DeploymentState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("state for %s is corrupt", deploymentID), err)
	}
	return state, nil
}

// Save atomically persists the state and increments its version. The temp
// file is synced before the rename, so the rename publishes complete bytes.
func (s *FileStore) Save(state *engine.DeploymentState) error {
	state.Version++
	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		state.Version--
		return engine.NewConfigurationError("failed to encode state", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*.tmp")
	if err != nil {
		state.Version--
		return engine.NewConfigurationError("failed to create temp state file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		state.Version--
		return engine.NewConfigurationError("failed to write state", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		state.Version--
		return engine.NewConfigurationError("failed to sync state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		state.Version--
		return engine.NewConfigurationError("failed to close state file", err)
	}

	if err := os.Rename(tmpName, s.statePath(state.DeploymentID)); err != nil {
		os.Remove(tmpName)
		state.Version--
		return engine.NewConfigurationError("failed to publish state", err)
	}

	s.logger.Debug().
		Str("deployment", state.DeploymentID).
		Int64("version", state.Version).
		Msg("State saved")
	return nil
}

func (s *FileStore) statePath(deploymentID string) string {
	return filepath.Join(s.dir, deploymentID+".json")
}
