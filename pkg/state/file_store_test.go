package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestFileStore_LoadMissingIsEmpty(t *testing.T) {
	store := newTestStore(t)

	state, err := store.Load("never-applied")
	if err != nil {
		t.Fatalf("Expected no error for missing state, got: %v", err)
	}
	if state.DeploymentID != "never-applied" {
		t.Errorf("Expected deployment ID set, got %q", state.DeploymentID)
	}
	if state.Version != 0 {
		t.Errorf("Expected version 0, got %d", state.Version)
	}
	if len(state.Modules) != 0 {
		t.Errorf("Expected no module records, got %d", len(state.Modules))
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	state := engine.NewDeploymentState("fraud-prod")
	state.SetRecord("storage", &engine.ModuleRecord{
		Status:     engine.ModuleStatusProvisioned,
		ConfigHash: "abc123",
		Outputs:    map[string]interface{}{"bucket_name": "fraud-artifacts"},
	})

	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if state.Version != 1 {
		t.Errorf("Expected version 1 after first save, got %d", state.Version)
	}

	loaded, err := store.Load("fraud-prod")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("Expected loaded version 1, got %d", loaded.Version)
	}

	record := loaded.Record("storage")
	if record.Status != engine.ModuleStatusProvisioned {
		t.Errorf("Expected provisioned, got %s", record.Status)
	}
	if record.ConfigHash != "abc123" {
		t.Errorf("Expected config hash preserved, got %q", record.ConfigHash)
	}
	if record.Outputs["bucket_name"] != "fraud-artifacts" {
		t.Errorf("Expected outputs preserved, got %v", record.Outputs)
	}
}

func TestFileStore_VersionIncrementsPerSave(t *testing.T) {
	store := newTestStore(t)
	state := engine.NewDeploymentState("fraud-prod")

	for i := int64(1); i <= 5; i++ {
		if err := store.Save(state); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
		if state.Version != i {
			t.Errorf("Expected version %d, got %d", i, state.Version)
		}
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	state := engine.NewDeploymentState("fraud-prod")
	for i := 0; i < 3; i++ {
		if err := store.Save(state); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_CorruptStateIsAnError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "fraud-prod.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err = store.Load("fraud-prod")
	if err == nil {
		t.Fatal("Expected error for corrupt state, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}
