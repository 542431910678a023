// ABOUTME: Watermark store for incremental sync state
// ABOUTME: Tracks the upper bound of durably ingested data per (source, object type)
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrWatermarkRegression is returned when a caller tries to move a
// timestamp watermark backwards. The stored value is left unchanged.
var ErrWatermarkRegression = errors.New("watermark regression")

// GetWatermark returns the stored watermark for a (source, object type)
// pair, or "" if none has been recorded yet.
func GetWatermark(db *sql.DB, source, objectType string) (string, error) {
	var watermark string
	err := db.QueryRow(`
		SELECT watermark FROM sync_state
		WHERE source = ? AND object_type = ?
	`, source, objectType).Scan(&watermark)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get watermark: %w", err)
	}

	return watermark, nil
}

// SetWatermark advances the watermark for a (source, object type) pair.
// Must be called only after the corresponding batch has been durably
// written — a crash between write and advance re-processes the window,
// which idempotent upserts absorb.
//
// When both the stored and the new value parse as RFC 3339 timestamps,
// moving backwards is rejected with ErrWatermarkRegression. Opaque
// cursor watermarks are not comparable and are stored as-is.
func SetWatermark(db *sql.DB, source, objectType, watermark string) error {
	if watermark == "" {
		return fmt.Errorf("refusing to store empty watermark for %s/%s", source, objectType)
	}

	current, err := GetWatermark(db, source, objectType)
	if err != nil {
		return err
	}
	if regresses(current, watermark) {
		return fmt.Errorf("%w: %s/%s has %q, refusing %q", ErrWatermarkRegression, source, objectType, current, watermark)
	}

	_, err = db.Exec(`
		INSERT INTO sync_state (source, object_type, watermark, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source, object_type) DO UPDATE SET
			watermark = excluded.watermark,
			updated_at = CURRENT_TIMESTAMP
	`, source, objectType, watermark)

	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}

	return nil
}

// AllWatermarks returns every stored watermark keyed by "source/object_type".
func AllWatermarks(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query(`SELECT source, object_type, watermark FROM sync_state ORDER BY source, object_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watermarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]string{}
	for rows.Next() {
		var source, objectType, watermark string
		if err := rows.Scan(&source, &objectType, &watermark); err != nil {
			return nil, fmt.Errorf("failed to scan watermark: %w", err)
		}
		out[source+"/"+objectType] = watermark
	}

	return out, rows.Err()
}

// regresses reports whether replacing old with new would move a timestamp
// watermark backwards. Values that don't both parse as RFC 3339 are
// treated as opaque cursors and never regress.
func regresses(old, new string) bool {
	if old == "" {
		return false
	}
	oldT, errOld := time.Parse(time.RFC3339, old)
	newT, errNew := time.Parse(time.RFC3339, new)
	if errOld != nil || errNew != nil {
		return false
	}
	return newT.Before(oldT)
}
