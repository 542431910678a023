// ABOUTME: Database operations for participant resolution links
// ABOUTME: Creates unmatched rows at ingest and applies resolver decisions
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/corral/models"
)

// EnsureParticipant inserts a participant row with confidence unmatched if
// one doesn't already exist for (record_type, record_id, role, normalized).
// Re-ingesting the same record is a no-op: an existing row keeps whatever
// resolution it has.
func EnsureParticipant(db *sql.DB, p *models.Participant) error {
	if p.Normalized == "" {
		return fmt.Errorf("participant has no normalized value")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Confidence == "" {
		p.Confidence = models.ConfidenceUnmatched
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(`
		INSERT INTO participants (id, record_type, record_id, role, kind, raw_value, normalized, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_type, record_id, role, normalized) DO NOTHING
	`, p.ID.String(), p.RecordType, p.RecordID, p.Role, p.Kind, p.RawValue, p.Normalized, p.Confidence, p.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to ensure participant: %w", err)
	}
	return nil
}

// UnresolvedParticipants returns rows eligible for (re-)resolution:
// unmatched rows and fuzzy rows that might upgrade as new CRM data or
// manual mappings arrive. Manual and exact rows are final.
func UnresolvedParticipants(db *sql.DB, limit int) ([]models.Participant, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := db.Query(`
		SELECT id, record_type, record_id, role, kind, raw_value, normalized,
		       contact_id, account_id, confidence, resolved_at, created_at
		FROM participants
		WHERE confidence IN ('unmatched', 'fuzzy')
		ORDER BY created_at
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}

	return participants, rows.Err()
}

// GetParticipants returns every participant row for one record.
func GetParticipants(db *sql.DB, recordType, recordID string) ([]models.Participant, error) {
	rows, err := db.Query(`
		SELECT id, record_type, record_id, role, kind, raw_value, normalized,
		       contact_id, account_id, confidence, resolved_at, created_at
		FROM participants
		WHERE record_type = ? AND record_id = ?
		ORDER BY role, normalized
	`, recordType, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}

	return participants, rows.Err()
}

// ApplyResolution records a resolver decision. The confidence tier is only
// allowed to improve: a weaker result than what's stored is ignored, so
// re-runs never silently downgrade a link.
func ApplyResolution(db *sql.DB, p *models.Participant, contactID, accountID *string, confidence string) error {
	newRank := models.ConfidenceRank(confidence)
	if newRank < 0 {
		return fmt.Errorf("unknown confidence %q", confidence)
	}
	if newRank < models.ConfidenceRank(p.Confidence) {
		return nil
	}

	now := time.Now().UTC()
	_, err := db.Exec(`
		UPDATE participants
		SET contact_id = ?, account_id = ?, confidence = ?, resolved_at = ?
		WHERE id = ?
	`, contactID, accountID, confidence, now, p.ID.String())

	if err != nil {
		return fmt.Errorf("failed to apply resolution: %w", err)
	}

	p.ContactID = contactID
	p.AccountID = accountID
	p.Confidence = confidence
	p.ResolvedAt = &now
	return nil
}

func scanParticipant(rows *sql.Rows) (*models.Participant, error) {
	var p models.Participant
	var id string
	var contactID, accountID sql.NullString
	var resolvedAt sql.NullTime

	err := rows.Scan(
		&id,
		&p.RecordType,
		&p.RecordID,
		&p.Role,
		&p.Kind,
		&p.RawValue,
		&p.Normalized,
		&contactID,
		&accountID,
		&p.Confidence,
		&resolvedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid participant id %q: %w", id, err)
	}
	p.ID = parsed

	if contactID.Valid {
		p.ContactID = &contactID.String
	}
	if accountID.Valid {
		p.AccountID = &accountID.String
	}
	if resolvedAt.Valid {
		p.ResolvedAt = &resolvedAt.Time
	}

	return &p, nil
}
