// ABOUTME: Telephony source adapter for a Dialpad-style call log API
// ABOUTME: Opaque cursor paging; call legs become call records plus phone participants
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/match"
	"github.com/harperreed/corral/models"
)

const callsPageLimit = 100

// CallsAdapter pages the provider's call log with its opaque cursor token.
// The cursor itself is the watermark, so the adapter is cursor-ordered.
type CallsAdapter struct {
	client *apiClient
}

func NewCallsAdapter(baseURL, token string) (*CallsAdapter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("calls base URL is required")
	}
	return &CallsAdapter{client: newAPIClient(baseURL, token)}, nil
}

func (a *CallsAdapter) Source() string      { return models.SourceCalls }
func (a *CallsAdapter) ObjectType() string  { return models.ObjectCallRecords }
func (a *CallsAdapter) CursorOrdered() bool { return true }

func (a *CallsAdapter) Fetch(ctx context.Context, mode, watermark string) (Pager, error) {
	cursor := ""
	if mode != models.ModeFull {
		cursor = watermark
	}
	return &callsPager{adapter: a, cursor: cursor, lastCursor: cursor}, nil
}

type callItem struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	FromNumber  string `json:"from_number"`
	ToNumber    string `json:"to_number"`
	DurationSec int    `json:"duration"`
	Transcript  string `json:"transcript"`
	StartedAt   string `json:"started_at"`
}

type callsPage struct {
	Items  []callItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type callsPager struct {
	adapter    *CallsAdapter
	cursor     string
	lastCursor string
	exhausted  bool
}

func (p *callsPager) Next(ctx context.Context) (*Page, error) {
	if p.exhausted {
		return nil, nil
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(callsPageLimit))
	if p.cursor != "" {
		query.Set("cursor", p.cursor)
	}

	var response callsPage
	if err := p.adapter.client.getJSON(ctx, "/api/v2/calls", query, &response); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, item := range response.Items {
		page.Records = append(page.Records, callRecord(item))
	}

	if response.Cursor != "" && response.Cursor != p.cursor {
		p.cursor = response.Cursor
		p.lastCursor = response.Cursor
	} else {
		p.exhausted = true
	}
	if len(response.Items) == 0 {
		p.exhausted = true
	}

	return page, nil
}

// Watermark is the last cursor the provider handed back; an empty window
// keeps the previous cursor so the next run resumes from the same spot.
func (p *callsPager) Watermark() string {
	return p.lastCursor
}

func callRecord(item callItem) Record {
	if item.ID == "" {
		return Record{Invalid: fmt.Errorf("call without id")}
	}

	startedAt, err := time.Parse(time.RFC3339, item.StartedAt)
	if err != nil {
		return Record{NativeID: item.ID, Invalid: fmt.Errorf("call %s has bad started_at %q: %w", item.ID, item.StartedAt, err)}
	}

	call := &models.CallRecord{
		ID:          item.ID,
		Direction:   item.Direction,
		FromNumber:  item.FromNumber,
		ToNumber:    item.ToNumber,
		DurationSec: item.DurationSec,
		Transcript:  item.Transcript,
		StartedAt:   startedAt,
	}

	return Record{NativeID: item.ID, Apply: func(database *sql.DB) error {
		if err := db.UpsertCallRecord(database, call); err != nil {
			return err
		}
		return ensureCallParticipants(database, call)
	}}
}

// ensureCallParticipants creates unmatched participant rows for both legs
// of the call. Numbers that don't normalize are skipped — the resolver
// can't do anything with them.
func ensureCallParticipants(database *sql.DB, call *models.CallRecord) error {
	legs := []struct {
		role string
		raw  string
	}{
		{models.RoleFrom, call.FromNumber},
		{models.RoleTo, call.ToNumber},
	}

	for _, leg := range legs {
		phone := match.NormalizePhone(leg.raw)
		if phone.Key == "" {
			continue
		}
		participant := &models.Participant{
			RecordType: models.RecordCall,
			RecordID:   call.ID,
			Role:       leg.role,
			Kind:       models.KindPhone,
			RawValue:   leg.raw,
			Normalized: phone.Key,
		}
		if err := db.EnsureParticipant(database, participant); err != nil {
			return err
		}
	}
	return nil
}
