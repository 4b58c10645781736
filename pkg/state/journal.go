package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteJournal records run history in a local SQLite database. The journal
// is an audit surface; callers treat its failures as warnings.
type SQLiteJournal struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewSQLiteJournal creates a journal backed by the database at path.
func NewSQLiteJournal(path string, logger zerolog.Logger) (*SQLiteJournal, error) {
	if path == "" {
		return nil, engine.NewConfigurationError("journal database path is required", nil)
	}
	return &SQLiteJournal{
		path:   path,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Init opens the database and runs migrations.
func (j *SQLiteJournal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", j.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping journal database: %w", err)
	}

	j.db = db
	return j.migrate()
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (j *SQLiteJournal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordRun inserts or updates a run record.
func (j *SQLiteJournal) RecordRun(ctx context.Context, run *engine.Run) error {
	query := `
		INSERT INTO runs (id, deployment_id, operation, phase, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			completed_at = excluded.completed_at,
			error = excluded.error
	`

	_, err := j.db.ExecContext(ctx, query,
		run.ID,
		run.DeploymentID,
		run.Operation,
		string(run.Phase),
		run.StartedAt,
		run.CompletedAt,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecordModule records one module's outcome within a run.
func (j *SQLiteJournal) RecordModule(ctx context.Context, runID, module string, action engine.ActionType, status engine.ModuleStatus, detail string) error {
	query := `
		INSERT INTO run_modules (run_id, module, action, status, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		runID, module, string(action), string(status), detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record module outcome: %w", err)
	}
	return nil
}

// RecordCheck records one verification check's outcome within a run.
func (j *SQLiteJournal) RecordCheck(ctx context.Context, runID string, check engine.CheckResult) error {
	query := `
		INSERT INTO run_checks (run_id, name, outcome, detail, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		runID, check.Name, string(check.Outcome), check.Detail,
		check.Duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record check outcome: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs for a deployment, newest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context, deploymentID string, limit int) ([]*engine.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, deployment_id, operation, phase, started_at, completed_at, error
		FROM runs
		WHERE deployment_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run := &engine.Run{}
		var phase string
		if err := rows.Scan(
			&run.ID,
			&run.DeploymentID,
			&run.Operation,
			&phase,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Phase = engine.RunPhase(phase)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// ListModuleOutcomes returns the per-module records for a run, in insertion
// order.
func (j *SQLiteJournal) ListModuleOutcomes(ctx context.Context, runID string) ([]ModuleOutcome, error) {
	query := `
		SELECT module, action, status, detail, recorded_at
		FROM run_modules
		WHERE run_id = ?
		ORDER BY rowid
	`

	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list module outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []ModuleOutcome{}
	for rows.Next() {
		var o ModuleOutcome
		var action, status string
		if err := rows.Scan(&o.Module, &action, &status, &o.Detail, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan module outcome: %w", err)
		}
		o.Action = engine.ActionType(action)
		o.Status = engine.ModuleStatus(status)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// ModuleOutcome is one journaled module record.
type ModuleOutcome struct {
	Module     string
	Action     engine.ActionType
	Status     engine.ModuleStatus
	Detail     string
	RecordedAt time.Time
}
