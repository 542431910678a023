// ABOUTME: Unit tests for the watermark store
// ABOUTME: Covers first-write, advance, regression rejection, and opaque cursors
package db

import (
	"database/sql"
	"errors"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := InitSchema(database); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func TestGetWatermarkEmpty(t *testing.T) {
	database := setupTestDB(t)

	watermark, err := GetWatermark(database, "crm", "contacts")
	if err != nil {
		t.Fatalf("GetWatermark failed: %v", err)
	}
	if watermark != "" {
		t.Errorf("expected empty watermark for unseen stream, got %q", watermark)
	}
}

func TestSetAndGetWatermark(t *testing.T) {
	database := setupTestDB(t)

	if err := SetWatermark(database, "crm", "contacts", "2026-01-15T10:00:00Z"); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}

	watermark, err := GetWatermark(database, "crm", "contacts")
	if err != nil {
		t.Fatalf("GetWatermark failed: %v", err)
	}
	if watermark != "2026-01-15T10:00:00Z" {
		t.Errorf("watermark = %q, want 2026-01-15T10:00:00Z", watermark)
	}
}

func TestWatermarkAdvances(t *testing.T) {
	database := setupTestDB(t)

	if err := SetWatermark(database, "crm", "contacts", "2026-01-15T10:00:00Z"); err != nil {
		t.Fatalf("initial SetWatermark failed: %v", err)
	}
	if err := SetWatermark(database, "crm", "contacts", "2026-01-16T10:00:00Z"); err != nil {
		t.Fatalf("advancing SetWatermark failed: %v", err)
	}

	watermark, _ := GetWatermark(database, "crm", "contacts")
	if watermark != "2026-01-16T10:00:00Z" {
		t.Errorf("watermark = %q, want advanced value", watermark)
	}
}

func TestWatermarkRegressionRejected(t *testing.T) {
	database := setupTestDB(t)

	if err := SetWatermark(database, "crm", "contacts", "2026-01-16T10:00:00Z"); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}

	err := SetWatermark(database, "crm", "contacts", "2026-01-15T10:00:00Z")
	if !errors.Is(err, ErrWatermarkRegression) {
		t.Fatalf("expected ErrWatermarkRegression, got %v", err)
	}

	// Stored value must be untouched
	watermark, _ := GetWatermark(database, "crm", "contacts")
	if watermark != "2026-01-16T10:00:00Z" {
		t.Errorf("watermark = %q, want unchanged after rejected regression", watermark)
	}
}

func TestWatermarkSameValueAllowed(t *testing.T) {
	database := setupTestDB(t)

	if err := SetWatermark(database, "gmail", "messages", "2026-01-15T10:00:00Z"); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}
	// Re-writing the same timestamp is not a regression (empty windows)
	if err := SetWatermark(database, "gmail", "messages", "2026-01-15T10:00:00Z"); err != nil {
		t.Errorf("re-setting identical watermark failed: %v", err)
	}
}

func TestWatermarkOpaqueCursorsNeverRegress(t *testing.T) {
	database := setupTestDB(t)

	if err := SetWatermark(database, "calls", "call_records", "cursor-zzz"); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}
	// Opaque cursors aren't ordered, any replacement is accepted
	if err := SetWatermark(database, "calls", "call_records", "cursor-aaa"); err != nil {
		t.Errorf("replacing opaque cursor failed: %v", err)
	}

	watermark, _ := GetWatermark(database, "calls", "call_records")
	if watermark != "cursor-aaa" {
		t.Errorf("watermark = %q, want cursor-aaa", watermark)
	}
}

func TestWatermarkEmptyRejected(t *testing.T) {
	database := setupTestDB(t)

	if err := SetWatermark(database, "crm", "contacts", ""); err == nil {
		t.Error("expected error storing empty watermark")
	}
}

func TestWatermarksIndependentPerStream(t *testing.T) {
	database := setupTestDB(t)

	_ = SetWatermark(database, "crm", "contacts", "2026-01-15T10:00:00Z")
	_ = SetWatermark(database, "crm", "accounts", "2026-01-10T10:00:00Z")
	_ = SetWatermark(database, "gmail", "messages", "2026-01-20T10:00:00Z")

	all, err := AllWatermarks(database)
	if err != nil {
		t.Fatalf("AllWatermarks failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 watermarks, got %d", len(all))
	}
	if all["crm/contacts"] != "2026-01-15T10:00:00Z" {
		t.Errorf("crm/contacts = %q", all["crm/contacts"])
	}
	if all["crm/accounts"] != "2026-01-10T10:00:00Z" {
		t.Errorf("crm/accounts = %q", all["crm/accounts"])
	}
}
