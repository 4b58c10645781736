package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()

	journal, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	if err := journal.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return journal
}

func testRun(id string, startedAt time.Time) *engine.Run {
	return &engine.Run{
		ID:           id,
		DeploymentID: "fraud-prod",
		Operation:    "apply",
		Phase:        engine.PhaseSucceeded,
		StartedAt:    startedAt,
	}
}

func TestSQLiteJournal_RecordAndListRuns(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := testRun(id, base.Add(time.Duration(i)*time.Hour))
		if err := journal.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := journal.ListRuns(ctx, "fraud-prod", 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	// Newest first.
	if runs[0].ID != "run-3" || runs[2].ID != "run-1" {
		t.Errorf("Expected newest-first ordering, got %s..%s", runs[0].ID, runs[2].ID)
	}
}

func TestSQLiteJournal_RecordRunUpsert(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	run := testRun("run-1", time.Now().UTC())
	run.Phase = engine.PhasePlanning
	if err := journal.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	now := time.Now().UTC()
	run.Phase = engine.PhaseFailed
	run.CompletedAt = &now
	run.Error = "module endpoint failed"
	if err := journal.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun update failed: %v", err)
	}

	runs, err := journal.ListRuns(ctx, "fraud-prod", 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected upsert to keep 1 run, got %d", len(runs))
	}
	if runs[0].Phase != engine.PhaseFailed {
		t.Errorf("Expected phase updated to failed, got %s", runs[0].Phase)
	}
	if runs[0].Error != "module endpoint failed" {
		t.Errorf("Expected error recorded, got %q", runs[0].Error)
	}
}

func TestSQLiteJournal_ListRunsScopedToDeployment(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	if err := journal.RecordRun(ctx, testRun("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	other := testRun("run-2", time.Now().UTC())
	other.DeploymentID = "fraud-staging"
	if err := journal.RecordRun(ctx, other); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := journal.ListRuns(ctx, "fraud-prod", 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("Expected only fraud-prod runs, got %v", runs)
	}
}

func TestSQLiteJournal_ModuleOutcomes(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	if err := journal.RecordRun(ctx, testRun("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	modules := []string{"storage", "endpoint", "alerts"}
	for _, m := range modules {
		err := journal.RecordModule(ctx, "run-1", m, engine.ActionCreate, engine.ModuleStatusProvisioned, "")
		if err != nil {
			t.Fatalf("RecordModule failed: %v", err)
		}
	}

	outcomes, err := journal.ListModuleOutcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListModuleOutcomes failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}
	for i, m := range modules {
		if outcomes[i].Module != m {
			t.Errorf("Position %d: expected %s, got %s", i, m, outcomes[i].Module)
		}
	}
}

func TestSQLiteJournal_RecordCheck(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	if err := journal.RecordRun(ctx, testRun("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	check := engine.CheckResult{
		Name:     "readiness",
		Outcome:  engine.CheckPass,
		Detail:   "endpoint in service after 40s",
		Duration: 40 * time.Second,
	}
	if err := journal.RecordCheck(ctx, "run-1", check); err != nil {
		t.Fatalf("RecordCheck failed: %v", err)
	}
}
