// ABOUTME: Data models for warehouse entities
// ABOUTME: Defines CRM mirrors, raw communication records, participants, and sync bookkeeping
package models

import (
	"time"

	"github.com/google/uuid"
)

// Source system identifiers. Each (source, object type) pair owns its own
// watermark and run history.
const (
	SourceCRM       = "crm"
	SourceGmail     = "gmail"
	SourceCalls     = "calls"
	SourceSequences = "sequences"
)

// Object types the adapters ingest.
const (
	ObjectAccounts      = "accounts"
	ObjectContacts      = "contacts"
	ObjectLeads         = "leads"
	ObjectOpportunities = "opportunities"
	ObjectActivities    = "activities"
	ObjectMessages      = "messages"
	ObjectCallRecords   = "calls"
	ObjectEnrollments   = "enrollments"
)

// Sync modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Run statuses.
const (
	RunPending = "pending"
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// Account mirrors one CRM company/account. IDs are CRM-native and never
// reassigned locally.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Domain       string    `json:"domain,omitempty"`
	Industry     string    `json:"industry,omitempty"`
	LastModified time.Time `json:"last_modified"`
	SyncedAt     time.Time `json:"synced_at"`
}

type Contact struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Title        string    `json:"title,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
	SyncedAt     time.Time `json:"synced_at"`
}

type Lead struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Status       string    `json:"status,omitempty"`
	LastModified time.Time `json:"last_modified"`
	SyncedAt     time.Time `json:"synced_at"`
}

type Opportunity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	AccountID    string     `json:"account_id,omitempty"`
	Stage        string     `json:"stage,omitempty"`
	Amount       int64      `json:"amount,omitempty"` // in cents
	CloseDate    *time.Time `json:"close_date,omitempty"`
	LastModified time.Time  `json:"last_modified"`
	SyncedAt     time.Time  `json:"synced_at"`
}

type Activity struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ContactID    string    `json:"contact_id,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	LastModified time.Time `json:"last_modified"`
	SyncedAt     time.Time `json:"synced_at"`
}

// EmailMessage is a raw ingested email. The payload fields are immutable
// after ingest; only the resolved_* columns are mutated, and only by the
// resolver.
type EmailMessage struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"thread_id,omitempty"`
	Subject           string    `json:"subject,omitempty"`
	FromAddr          string    `json:"from_addr"`
	ToAddrs           string    `json:"to_addrs,omitempty"`
	CcAddrs           string    `json:"cc_addrs,omitempty"`
	SentAt            time.Time `json:"sent_at"`
	ResolvedContactID *string   `json:"resolved_contact_id,omitempty"`
	ResolvedAccountID *string   `json:"resolved_account_id,omitempty"`
	SyncedAt          time.Time `json:"synced_at"`
}

type CallRecord struct {
	ID                string    `json:"id"`
	Direction         string    `json:"direction,omitempty"`
	FromNumber        string    `json:"from_number"`
	ToNumber          string    `json:"to_number"`
	DurationSec       int       `json:"duration_sec,omitempty"`
	Transcript        string    `json:"transcript,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	ResolvedContactID *string   `json:"resolved_contact_id,omitempty"`
	ResolvedAccountID *string   `json:"resolved_account_id,omitempty"`
	SyncedAt          time.Time `json:"synced_at"`
}

// Enrollment mirrors one prospect's membership in a marketing sequence.
type Enrollment struct {
	ID            string    `json:"id"`
	SequenceID    string    `json:"sequence_id"`
	SequenceName  string    `json:"sequence_name,omitempty"`
	ProspectEmail string    `json:"prospect_email"`
	State         string    `json:"state,omitempty"`
	LastModified  time.Time `json:"last_modified"`
	SyncedAt      time.Time `json:"synced_at"`
}

// Participant roles within a communication record.
const (
	RoleFrom = "from"
	RoleTo   = "to"
	RoleCc   = "cc"
)

// Record types a participant can belong to.
const (
	RecordEmail = "email"
	RecordCall  = "call"
)

// Address kinds.
const (
	KindEmail = "email"
	KindPhone = "phone"
)

// Confidence tiers, strongest first.
const (
	ConfidenceManual    = "manual"
	ConfidenceExact     = "exact"
	ConfidenceFuzzy     = "fuzzy"
	ConfidenceUnmatched = "unmatched"
)

// ConfidenceRank orders tiers so callers can compare match strength.
// Higher is stronger; unknown strings rank below unmatched.
func ConfidenceRank(confidence string) int {
	switch confidence {
	case ConfidenceManual:
		return 3
	case ConfidenceExact:
		return 2
	case ConfidenceFuzzy:
		return 1
	case ConfidenceUnmatched:
		return 0
	}
	return -1
}

// Participant is one address or number extracted from a communication
// record — the unit the resolver operates on. Created at ingest with
// confidence unmatched; only the resolver mutates it afterwards.
type Participant struct {
	ID         uuid.UUID  `json:"id"`
	RecordType string     `json:"record_type"`
	RecordID   string     `json:"record_id"`
	Role       string     `json:"role"`
	Kind       string     `json:"kind"`
	RawValue   string     `json:"raw_value"`
	Normalized string     `json:"normalized"`
	ContactID  *string    `json:"contact_id,omitempty"`
	AccountID  *string    `json:"account_id,omitempty"`
	Confidence string     `json:"confidence"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ManualMapping is an operator-curated override from a normalized address
// to a contact/account. Read-only to the pipeline.
type ManualMapping struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	Normalized string    `json:"normalized"`
	ContactID  string    `json:"contact_id"`
	AccountID  string    `json:"account_id,omitempty"`
	IsActive   bool      `json:"is_active"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SyncRun is the audit row for one sync invocation. Finalized once,
// immutable thereafter.
type SyncRun struct {
	ID            string     `json:"id"` // ULID, so run history sorts by time
	Source        string     `json:"source"`
	ObjectType    string     `json:"object_type"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	RowsProcessed int        `json:"rows_processed"`
	RowsFailed    int        `json:"rows_failed"`
	Watermark     string     `json:"watermark,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}
