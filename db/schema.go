// ABOUTME: Database schema definitions for the warehouse
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT,
	industry TEXT,
	last_modified DATETIME NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_domain ON accounts(domain);

CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	title TEXT,
	account_id TEXT,
	last_modified DATETIME NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_account_id ON contacts(account_id);

CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	status TEXT,
	last_modified DATETIME NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS opportunities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	account_id TEXT,
	stage TEXT,
	amount INTEGER,
	close_date DATE,
	last_modified DATETIME NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_account_id ON opportunities(account_id);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	contact_id TEXT,
	account_id TEXT,
	subject TEXT,
	occurred_at DATETIME NOT NULL,
	last_modified DATETIME NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_contact ON activities(contact_id);

CREATE TABLE IF NOT EXISTS email_messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT,
	subject TEXT,
	from_addr TEXT NOT NULL,
	to_addrs TEXT,
	cc_addrs TEXT,
	sent_at DATETIME NOT NULL,
	resolved_contact_id TEXT,
	resolved_account_id TEXT,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_messages_sent_at ON email_messages(sent_at DESC);

CREATE TABLE IF NOT EXISTS call_records (
	id TEXT PRIMARY KEY,
	direction TEXT,
	from_number TEXT NOT NULL,
	to_number TEXT NOT NULL,
	duration_sec INTEGER,
	transcript TEXT,
	started_at DATETIME NOT NULL,
	resolved_contact_id TEXT,
	resolved_account_id TEXT,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_records_started_at ON call_records(started_at DESC);

CREATE TABLE IF NOT EXISTS enrollments (
	id TEXT PRIMARY KEY,
	sequence_id TEXT NOT NULL,
	sequence_name TEXT,
	prospect_email TEXT NOT NULL,
	state TEXT,
	last_modified DATETIME NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrollments_prospect ON enrollments(prospect_email);

CREATE TABLE IF NOT EXISTS participants (
	id TEXT PRIMARY KEY,
	record_type TEXT NOT NULL CHECK(record_type IN ('email', 'call')),
	record_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK(role IN ('from', 'to', 'cc')),
	kind TEXT NOT NULL CHECK(kind IN ('email', 'phone')),
	raw_value TEXT NOT NULL,
	normalized TEXT NOT NULL,
	contact_id TEXT,
	account_id TEXT,
	confidence TEXT NOT NULL DEFAULT 'unmatched' CHECK(confidence IN ('manual', 'exact', 'fuzzy', 'unmatched')),
	resolved_at DATETIME,
	created_at DATETIME NOT NULL,
	UNIQUE(record_type, record_id, role, normalized)
);

CREATE INDEX IF NOT EXISTS idx_participants_confidence ON participants(confidence);
CREATE INDEX IF NOT EXISTS idx_participants_normalized ON participants(normalized);

CREATE TABLE IF NOT EXISTS manual_mappings (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('email', 'phone')),
	normalized TEXT NOT NULL,
	contact_id TEXT NOT NULL,
	account_id TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	note TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(kind, normalized)
);

CREATE TABLE IF NOT EXISTS sync_state (
	source TEXT NOT NULL,
	object_type TEXT NOT NULL,
	watermark TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, object_type)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	object_type TEXT NOT NULL,
	mode TEXT NOT NULL CHECK(mode IN ('full', 'incremental')),
	status TEXT NOT NULL CHECK(status IN ('pending', 'success', 'partial', 'failed')),
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	rows_processed INTEGER NOT NULL DEFAULT 0,
	rows_failed INTEGER NOT NULL DEFAULT 0,
	watermark TEXT,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_source ON sync_runs(source, object_type, id DESC);
`

// InitSchema creates all tables if they don't exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
