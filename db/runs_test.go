// ABOUTME: Unit tests for sync run audit records
// ABOUTME: Covers lifecycle, finalize-once, and history queries
package db

import (
	"testing"

	"github.com/harperreed/corral/models"
)

func TestCreateSyncRun(t *testing.T) {
	database := setupTestDB(t)

	run, err := CreateSyncRun(database, "crm", "contacts", models.ModeIncremental)
	if err != nil {
		t.Fatalf("CreateSyncRun failed: %v", err)
	}

	if run.ID == "" {
		t.Error("run ID is empty")
	}
	if run.Status != models.RunPending {
		t.Errorf("status = %s, want pending", run.Status)
	}
	if run.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestFinishSyncRun(t *testing.T) {
	database := setupTestDB(t)

	run, err := CreateSyncRun(database, "crm", "contacts", models.ModeIncremental)
	if err != nil {
		t.Fatalf("CreateSyncRun failed: %v", err)
	}

	run.Status = models.RunSuccess
	run.RowsProcessed = 42
	run.Watermark = "2026-01-15T10:00:00Z"
	if err := FinishSyncRun(database, run); err != nil {
		t.Fatalf("FinishSyncRun failed: %v", err)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}

	stored, err := LastRun(database, "crm", "contacts")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if stored == nil {
		t.Fatal("LastRun returned nil")
	}
	if stored.Status != models.RunSuccess {
		t.Errorf("status = %s, want success", stored.Status)
	}
	if stored.RowsProcessed != 42 {
		t.Errorf("rows_processed = %d, want 42", stored.RowsProcessed)
	}
	if stored.Watermark != "2026-01-15T10:00:00Z" {
		t.Errorf("watermark = %q", stored.Watermark)
	}
	if stored.FinishedAt == nil {
		t.Error("finished_at not persisted")
	}
}

func TestFinishSyncRunOnlyOnce(t *testing.T) {
	database := setupTestDB(t)

	run, _ := CreateSyncRun(database, "crm", "contacts", models.ModeIncremental)
	run.Status = models.RunFailed
	message := "upstream 500"
	run.ErrorMessage = &message
	if err := FinishSyncRun(database, run); err != nil {
		t.Fatalf("FinishSyncRun failed: %v", err)
	}

	// A second finalize must not overwrite the stored row
	run.Status = models.RunSuccess
	run.ErrorMessage = nil
	_ = FinishSyncRun(database, run)

	stored, _ := LastRun(database, "crm", "contacts")
	if stored.Status != models.RunFailed {
		t.Errorf("status = %s, want failed (finalized runs are immutable)", stored.Status)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage != "upstream 500" {
		t.Errorf("error message = %v, want preserved", stored.ErrorMessage)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	database := setupTestDB(t)

	first, _ := CreateSyncRun(database, "crm", "contacts", models.ModeFull)
	second, _ := CreateSyncRun(database, "gmail", "messages", models.ModeIncremental)

	runs, err := RecentRuns(database, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// ULID primary keys sort chronologically
	if runs[0].ID != second.ID {
		t.Errorf("first result = %s, want newest run %s", runs[0].ID, second.ID)
	}
	if runs[1].ID != first.ID {
		t.Errorf("second result = %s, want %s", runs[1].ID, first.ID)
	}
}

func TestLastRunMissingStream(t *testing.T) {
	database := setupTestDB(t)

	run, err := LastRun(database, "calls", "call_records")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if run != nil {
		t.Errorf("expected nil for unseen stream, got %+v", run)
	}
}
