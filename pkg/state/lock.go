package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// lockPollInterval is how often a blocked Acquire re-checks the lock file.
const lockPollInterval = 500 * time.Millisecond

// FileLocker implements deployment locking with an O_EXCL lock file per
// deployment. The file records the holder's identity so a conflicting run
// can tell the operator who holds the lock. Stale locks are never broken
// automatically; ForceReclaim backs the operator-facing unlock command.
type FileLocker struct {
	dir    string
	logger zerolog.Logger
}

// lockInfo is the JSON body of a lock file.
type lockInfo struct {
	ID         string    `json:"id"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (i lockInfo) String() string {
	return fmt.Sprintf("%s (pid %d, since %s)", i.Hostname, i.PID, i.AcquiredAt.Format(time.RFC3339))
}

// NewFileLocker creates a locker storing lock files under dir.
func NewFileLocker(dir string, logger zerolog.Logger) (*FileLocker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to create lock directory %s", dir), err)
	}
	return &FileLocker{
		dir:    dir,
		logger: logger.With().Str("component", "lock").Logger(),
	}, nil
}

// Acquire takes the deployment lock, polling until timeout if it is held.
// A zero timeout makes a single attempt.
func (l *FileLocker) Acquire(ctx context.Context, deploymentID string, timeout time.Duration) (engine.Lease, error) {
	deadline := time.Now().Add(timeout)

	for {
		lease, err := l.tryAcquire(deploymentID)
		if err == nil {
			return lease, nil
		}
		if !engine.IsLock(err) {
			return nil, err
		}

		if timeout <= 0 || time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, engine.NewLockError("lock wait interrupted", ctx.Err()).
				WithCode(engine.ErrCodeLockTimeout)
		case <-time.After(lockPollInterval):
		}
	}
}

// tryAcquire makes one attempt to create the lock file.
func (l *FileLocker) tryAcquire(deploymentID string) (engine.Lease, error) {
	info := lockInfo{
		ID:         uuid.New().String(),
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	}
	info.Hostname, _ = os.Hostname()

	path := l.lockPath(deploymentID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		holder := l.readHolder(path)
		return nil, engine.NewLockError(
			fmt.Sprintf("deployment %s is locked by %s", deploymentID, holder),
			nil,
		).WithCode(engine.ErrCodeLockHeld)
	}
	if err != nil {
		return nil, engine.NewLockError("failed to create lock file", err)
	}

	data, _ := json.MarshalIndent(info, "", "  ")
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, engine.NewLockError("failed to write lock file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, engine.NewLockError("failed to close lock file", err)
	}

	l.logger.Debug().Str("deployment", deploymentID).Str("lock_id", info.ID).Msg("Lock acquired")
	return &fileLease{locker: l, deploymentID: deploymentID, info: info}, nil
}

// ForceReclaim removes the lock file regardless of holder. Reserved for the
// unlock command; the caller has already confirmed the holder is gone.
func (l *FileLocker) ForceReclaim(deploymentID string) error {
	path := l.lockPath(deploymentID)
	holder := l.readHolder(path)

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return engine.NewLockError(
			fmt.Sprintf("deployment %s is not locked", deploymentID), nil)
	}
	if err != nil {
		return engine.NewLockError("failed to remove lock file", err)
	}

	l.logger.Warn().
		Str("deployment", deploymentID).
		Str("previous_holder", holder).
		Msg("Lock forcibly reclaimed")
	return nil
}

// Holder returns a description of the current lock holder, or empty if the
// deployment is unlocked.
func (l *FileLocker) Holder(deploymentID string) string {
	path := l.lockPath(deploymentID)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return l.readHolder(path)
}

func (l *FileLocker) readHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown holder"
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "unknown holder"
	}
	return info.String()
}

func (l *FileLocker) lockPath(deploymentID string) string {
	return filepath.Join(l.dir, deploymentID+".lock")
}

// fileLease is a held file lock.
type fileLease struct {
	locker       *FileLocker
	deploymentID string
	info         lockInfo
	released     bool
}

// Holder describes the lease owner.
func (le *fileLease) Holder() string {
	return le.info.String()
}

// Release removes the lock file if this lease still owns it. Releasing
// twice, or after a force reclaim, is a no-op.
func (le *fileLease) Release() error {
	if le.released {
		return nil
	}
	le.released = true

	path := le.locker.lockPath(le.deploymentID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return engine.NewLockError("failed to read lock file on release", err)
	}

	var current lockInfo
	if err := json.Unmarshal(data, &current); err == nil && current.ID != le.info.ID {
		// The lock was reclaimed and re-acquired by someone else.
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return engine.NewLockError("failed to remove lock file", err)
	}

	le.locker.logger.Debug().Str("deployment", le.deploymentID).Msg("Lock released")
	return nil
}
