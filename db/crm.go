// ABOUTME: Upsert and lookup operations for CRM mirror tables
// ABOUTME: Accounts, contacts, leads, opportunities, and activities keyed by CRM-native ID
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/corral/models"
)

// UpsertAccount writes an account keyed by its CRM-native ID. Re-running
// with the same record produces the same stored state.
func UpsertAccount(db *sql.DB, account *models.Account) error {
	if account.ID == "" {
		return fmt.Errorf("account has no id")
	}
	account.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO accounts (id, name, domain, industry, last_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			domain = excluded.domain,
			industry = excluded.industry,
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at
	`, account.ID, account.Name, account.Domain, account.Industry, account.LastModified, account.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func UpsertContact(db *sql.DB, contact *models.Contact) error {
	if contact.ID == "" {
		return fmt.Errorf("contact has no id")
	}
	contact.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO contacts (id, name, email, phone, title, account_id, last_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			title = excluded.title,
			account_id = excluded.account_id,
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at
	`, contact.ID, contact.Name, contact.Email, contact.Phone, contact.Title, contact.AccountID, contact.LastModified, contact.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

func UpsertLead(db *sql.DB, lead *models.Lead) error {
	if lead.ID == "" {
		return fmt.Errorf("lead has no id")
	}
	lead.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO leads (id, name, email, phone, status, last_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			status = excluded.status,
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at
	`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Status, lead.LastModified, lead.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert lead: %w", err)
	}
	return nil
}

func UpsertOpportunity(db *sql.DB, opp *models.Opportunity) error {
	if opp.ID == "" {
		return fmt.Errorf("opportunity has no id")
	}
	opp.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO opportunities (id, name, account_id, stage, amount, close_date, last_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			account_id = excluded.account_id,
			stage = excluded.stage,
			amount = excluded.amount,
			close_date = excluded.close_date,
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at
	`, opp.ID, opp.Name, opp.AccountID, opp.Stage, opp.Amount, opp.CloseDate, opp.LastModified, opp.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert opportunity: %w", err)
	}
	return nil
}

func UpsertActivity(db *sql.DB, activity *models.Activity) error {
	if activity.ID == "" {
		return fmt.Errorf("activity has no id")
	}
	activity.SyncedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO activities (id, type, contact_id, account_id, subject, occurred_at, last_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			contact_id = excluded.contact_id,
			account_id = excluded.account_id,
			subject = excluded.subject,
			occurred_at = excluded.occurred_at,
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at
	`, activity.ID, activity.Type, activity.ContactID, activity.AccountID, activity.Subject, activity.OccurredAt, activity.LastModified, activity.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert activity: %w", err)
	}
	return nil
}

// GetContact returns a contact by CRM-native ID, or nil if absent.
func GetContact(db *sql.DB, id string) (*models.Contact, error) {
	contact := &models.Contact{}
	var email, phone, title, accountID sql.NullString

	err := db.QueryRow(`
		SELECT id, name, email, phone, title, account_id, last_modified, synced_at
		FROM contacts WHERE id = ?
	`, id).Scan(
		&contact.ID,
		&contact.Name,
		&email,
		&phone,
		&title,
		&accountID,
		&contact.LastModified,
		&contact.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	contact.Email = email.String
	contact.Phone = phone.String
	contact.Title = title.String
	contact.AccountID = accountID.String
	return contact, nil
}

// AllContacts loads every mirrored contact. The resolver builds its match
// index from this; a full scan is fine at CRM-mirror scale.
func AllContacts(db *sql.DB) ([]models.Contact, error) {
	rows, err := db.Query(`
		SELECT id, name, email, phone, title, account_id, last_modified, synced_at
		FROM contacts
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		var contact models.Contact
		var email, phone, title, accountID sql.NullString

		err := rows.Scan(
			&contact.ID,
			&contact.Name,
			&email,
			&phone,
			&title,
			&accountID,
			&contact.LastModified,
			&contact.SyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		contact.Email = email.String
		contact.Phone = phone.String
		contact.Title = title.String
		contact.AccountID = accountID.String
		contacts = append(contacts, contact)
	}

	return contacts, rows.Err()
}
