// ABOUTME: Database operations for operator-curated manual mappings
// ABOUTME: The pipeline reads these; only operators create or deactivate them
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/corral/models"
)

// CreateManualMapping inserts an operator override. A mapping for the same
// (kind, normalized) replaces the previous one.
func CreateManualMapping(db *sql.DB, m *models.ManualMapping) error {
	if m.Normalized == "" || m.ContactID == "" {
		return fmt.Errorf("manual mapping needs a normalized address and a contact id")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.IsActive = true

	_, err := db.Exec(`
		INSERT INTO manual_mappings (id, kind, normalized, contact_id, account_id, is_active, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, TRUE, ?, ?, ?)
		ON CONFLICT(kind, normalized) DO UPDATE SET
			contact_id = excluded.contact_id,
			account_id = excluded.account_id,
			is_active = TRUE,
			note = excluded.note,
			updated_at = excluded.updated_at
	`, m.ID.String(), m.Kind, m.Normalized, m.ContactID, m.AccountID, m.Note, m.CreatedAt, m.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create manual mapping: %w", err)
	}
	return nil
}

// DeactivateManualMapping flips is_active off; the row is kept for audit.
func DeactivateManualMapping(db *sql.DB, kind, normalized string) error {
	_, err := db.Exec(`
		UPDATE manual_mappings
		SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE kind = ? AND normalized = ?
	`, kind, normalized)

	if err != nil {
		return fmt.Errorf("failed to deactivate manual mapping: %w", err)
	}
	return nil
}

// ActiveMappings returns every active override, for the resolver's index.
func ActiveMappings(db *sql.DB) ([]models.ManualMapping, error) {
	rows, err := db.Query(`
		SELECT id, kind, normalized, contact_id, account_id, is_active, note, created_at, updated_at
		FROM manual_mappings
		WHERE is_active = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []models.ManualMapping
	for rows.Next() {
		var m models.ManualMapping
		var id string
		var accountID, note sql.NullString

		err := rows.Scan(&id, &m.Kind, &m.Normalized, &m.ContactID, &accountID, &m.IsActive, &note, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manual mapping: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid mapping id %q: %w", id, err)
		}
		m.ID = parsed
		m.AccountID = accountID.String
		m.Note = note.String
		mappings = append(mappings, m)
	}

	return mappings, rows.Err()
}
