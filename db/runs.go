// ABOUTME: Database operations for the sync_runs audit table
// ABOUTME: Creates pending run rows and finalizes them with counts and status
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/corral/models"
)

// CreateSyncRun inserts a pending run row and returns it. Run IDs are
// ULIDs so the audit trail sorts chronologically by primary key.
func CreateSyncRun(db *sql.DB, source, objectType, mode string) (*models.SyncRun, error) {
	now := time.Now().UTC()
	run := &models.SyncRun{
		ID:         ulid.Make().String(),
		Source:     source,
		ObjectType: objectType,
		Mode:       mode,
		Status:     models.RunPending,
		StartedAt:  now,
	}

	_, err := db.Exec(`
		INSERT INTO sync_runs (id, source, object_type, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Source, run.ObjectType, run.Mode, run.Status, run.StartedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	return run, nil
}

// FinishSyncRun finalizes a pending run. A finalized run is never updated
// again; callers must not reuse the ID.
func FinishSyncRun(db *sql.DB, run *models.SyncRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	var errMsg sql.NullString
	if run.ErrorMessage != nil {
		errMsg = sql.NullString{String: *run.ErrorMessage, Valid: true}
	}

	_, err := db.Exec(`
		UPDATE sync_runs
		SET status = ?, finished_at = ?, rows_processed = ?, rows_failed = ?, watermark = ?, error_message = ?
		WHERE id = ? AND status = 'pending'
	`, run.Status, run.FinishedAt, run.RowsProcessed, run.RowsFailed, run.Watermark, errMsg, run.ID)

	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// RecentRuns returns the most recent runs across all sources, newest first.
func RecentRuns(db *sql.DB, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, source, object_type, mode, status, started_at, finished_at,
		       rows_processed, rows_failed, watermark, error_message
		FROM sync_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// LastRun returns the newest run for a (source, object type) pair, or nil.
func LastRun(db *sql.DB, source, objectType string) (*models.SyncRun, error) {
	rows, err := db.Query(`
		SELECT id, source, object_type, mode, status, started_at, finished_at,
		       rows_processed, rows_failed, watermark, error_message
		FROM sync_runs
		WHERE source = ? AND object_type = ?
		ORDER BY id DESC
		LIMIT 1
	`, source, objectType)
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (*models.SyncRun, error) {
	var run models.SyncRun
	var finishedAt sql.NullTime
	var watermark sql.NullString
	var errMsg sql.NullString

	err := rows.Scan(
		&run.ID,
		&run.Source,
		&run.ObjectType,
		&run.Mode,
		&run.Status,
		&run.StartedAt,
		&finishedAt,
		&run.RowsProcessed,
		&run.RowsFailed,
		&watermark,
		&errMsg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if watermark.Valid {
		run.Watermark = watermark.String
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}

	return &run, nil
}
