// ABOUTME: Upsert operations for raw communication records
// ABOUTME: Email messages, call records, and sequence enrollments keyed by source-native ID
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/corral/models"
)

// UpsertEmailMessage writes a raw email keyed by its Gmail message ID.
// The resolved_* columns are deliberately excluded from the update set:
// re-ingesting a message never clobbers resolution state.
func UpsertEmailMessage(db *sql.DB, msg *models.EmailMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("email message has no id")
	}
	msg.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO email_messages (id, thread_id, subject, from_addr, to_addrs, cc_addrs, sent_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			subject = excluded.subject,
			from_addr = excluded.from_addr,
			to_addrs = excluded.to_addrs,
			cc_addrs = excluded.cc_addrs,
			sent_at = excluded.sent_at,
			synced_at = excluded.synced_at
	`, msg.ID, msg.ThreadID, msg.Subject, msg.FromAddr, msg.ToAddrs, msg.CcAddrs, msg.SentAt, msg.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert email message: %w", err)
	}
	return nil
}

func GetEmailMessage(db *sql.DB, id string) (*models.EmailMessage, error) {
	msg := &models.EmailMessage{}
	var threadID, subject, toAddrs, ccAddrs sql.NullString
	var resolvedContact, resolvedAccount sql.NullString

	err := db.QueryRow(`
		SELECT id, thread_id, subject, from_addr, to_addrs, cc_addrs, sent_at,
		       resolved_contact_id, resolved_account_id, synced_at
		FROM email_messages WHERE id = ?
	`, id).Scan(
		&msg.ID, &threadID, &subject, &msg.FromAddr, &toAddrs, &ccAddrs, &msg.SentAt,
		&resolvedContact, &resolvedAccount, &msg.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	msg.ThreadID = threadID.String
	msg.Subject = subject.String
	msg.ToAddrs = toAddrs.String
	msg.CcAddrs = ccAddrs.String
	if resolvedContact.Valid {
		msg.ResolvedContactID = &resolvedContact.String
	}
	if resolvedAccount.Valid {
		msg.ResolvedAccountID = &resolvedAccount.String
	}
	return msg, nil
}

// UpsertCallRecord writes a raw call keyed by the telephony provider's ID.
// Resolution columns are preserved across re-ingests, same as emails.
func UpsertCallRecord(db *sql.DB, call *models.CallRecord) error {
	if call.ID == "" {
		return fmt.Errorf("call record has no id")
	}
	call.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO call_records (id, direction, from_number, to_number, duration_sec, transcript, started_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			direction = excluded.direction,
			from_number = excluded.from_number,
			to_number = excluded.to_number,
			duration_sec = excluded.duration_sec,
			transcript = excluded.transcript,
			started_at = excluded.started_at,
			synced_at = excluded.synced_at
	`, call.ID, call.Direction, call.FromNumber, call.ToNumber, call.DurationSec, call.Transcript, call.StartedAt, call.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert call record: %w", err)
	}
	return nil
}

func GetCallRecord(db *sql.DB, id string) (*models.CallRecord, error) {
	call := &models.CallRecord{}
	var direction, transcript sql.NullString
	var durationSec sql.NullInt64
	var resolvedContact, resolvedAccount sql.NullString

	err := db.QueryRow(`
		SELECT id, direction, from_number, to_number, duration_sec, transcript, started_at,
		       resolved_contact_id, resolved_account_id, synced_at
		FROM call_records WHERE id = ?
	`, id).Scan(
		&call.ID, &direction, &call.FromNumber, &call.ToNumber, &durationSec, &transcript,
		&call.StartedAt, &resolvedContact, &resolvedAccount, &call.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	call.Direction = direction.String
	call.Transcript = transcript.String
	call.DurationSec = int(durationSec.Int64)
	if resolvedContact.Valid {
		call.ResolvedContactID = &resolvedContact.String
	}
	if resolvedAccount.Valid {
		call.ResolvedAccountID = &resolvedAccount.String
	}
	return call, nil
}

// SetRecordResolution stamps the resolved contact/account onto a raw
// record. recordType is models.RecordEmail or models.RecordCall. Only the
// resolver calls this.
func SetRecordResolution(db *sql.DB, recordType, recordID string, contactID, accountID *string) error {
	table := ""
	switch recordType {
	case models.RecordEmail:
		table = "email_messages"
	case models.RecordCall:
		table = "call_records"
	default:
		return fmt.Errorf("unknown record type %q", recordType)
	}

	_, err := db.Exec(
		fmt.Sprintf(`UPDATE %s SET resolved_contact_id = ?, resolved_account_id = ? WHERE id = ?`, table),
		contactID, accountID, recordID,
	)
	if err != nil {
		return fmt.Errorf("failed to set resolution on %s: %w", table, err)
	}
	return nil
}

func UpsertEnrollment(db *sql.DB, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		return fmt.Errorf("enrollment has no id")
	}
	enrollment.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO enrollments (id, sequence_id, sequence_name, prospect_email, state, last_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sequence_id = excluded.sequence_id,
			sequence_name = excluded.sequence_name,
			prospect_email = excluded.prospect_email,
			state = excluded.state,
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at
	`, enrollment.ID, enrollment.SequenceID, enrollment.SequenceName, enrollment.ProspectEmail, enrollment.State, enrollment.LastModified, enrollment.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert enrollment: %w", err)
	}
	return nil
}
