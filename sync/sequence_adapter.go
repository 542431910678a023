// ABOUTME: Marketing sequence source adapter for an Outreach-style API
// ABOUTME: Time-windowed fetch with offset paging; enrollments mirror prospect sequence state
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

const sequencePageLimit = 100

// SequenceAdapter pages sequence enrollment states updated since the
// watermark. The window is time-based and pages aren't ordered by update
// time, so partial runs hold the watermark back and retry the window.
type SequenceAdapter struct {
	client *apiClient
}

func NewSequenceAdapter(baseURL, token string) (*SequenceAdapter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sequence base URL is required")
	}
	return &SequenceAdapter{client: newAPIClient(baseURL, token)}, nil
}

func (a *SequenceAdapter) Source() string      { return models.SourceSequences }
func (a *SequenceAdapter) ObjectType() string  { return models.ObjectEnrollments }
func (a *SequenceAdapter) CursorOrdered() bool { return false }

func (a *SequenceAdapter) Fetch(ctx context.Context, mode, watermark string) (Pager, error) {
	pager := &sequencePager{adapter: a, started: time.Now().UTC()}
	if mode != models.ModeFull && watermark != "" {
		since, err := time.Parse(time.RFC3339, watermark)
		if err != nil {
			return nil, fmt.Errorf("bad sequence watermark %q: %w", watermark, err)
		}
		pager.since = &since
	}
	return pager, nil
}

type sequenceState struct {
	ID            string `json:"id"`
	SequenceID    string `json:"sequence_id"`
	SequenceName  string `json:"sequence_name"`
	ProspectEmail string `json:"prospect_email"`
	State         string `json:"state"`
	UpdatedAt     string `json:"updated_at"`
}

type sequencePageResponse struct {
	Data []sequenceState `json:"data"`
	Meta struct {
		NextOffset *int `json:"next_offset"`
	} `json:"meta"`
}

type sequencePager struct {
	adapter   *SequenceAdapter
	since     *time.Time
	started   time.Time
	offset    int
	exhausted bool
}

func (p *sequencePager) Next(ctx context.Context) (*Page, error) {
	if p.exhausted {
		return nil, nil
	}

	query := url.Values{}
	query.Set("page[limit]", strconv.Itoa(sequencePageLimit))
	query.Set("page[offset]", strconv.Itoa(p.offset))
	if p.since != nil {
		query.Set("filter[updatedAt]", p.since.Format(time.RFC3339)+"..inf")
	}

	var response sequencePageResponse
	if err := p.adapter.client.getJSON(ctx, "/api/v2/sequenceStates", query, &response); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, state := range response.Data {
		page.Records = append(page.Records, enrollmentRecord(state))
	}

	if response.Meta.NextOffset != nil {
		p.offset = *response.Meta.NextOffset
	} else {
		p.exhausted = true
	}

	return page, nil
}

// Watermark is the fetch start: the window [since, start) is fully covered
// once the fetch exhausts, including the empty-window case.
func (p *sequencePager) Watermark() string {
	return p.started.Format(time.RFC3339)
}

func enrollmentRecord(state sequenceState) Record {
	if state.ID == "" {
		return Record{Invalid: fmt.Errorf("sequence state without id")}
	}
	if state.ProspectEmail == "" {
		return Record{NativeID: state.ID, Invalid: fmt.Errorf("sequence state %s without prospect email", state.ID)}
	}

	lastModified, err := time.Parse(time.RFC3339, state.UpdatedAt)
	if err != nil {
		return Record{NativeID: state.ID, Invalid: fmt.Errorf("sequence state %s has bad updated_at %q: %w", state.ID, state.UpdatedAt, err)}
	}

	enrollment := &models.Enrollment{
		ID:            state.ID,
		SequenceID:    state.SequenceID,
		SequenceName:  state.SequenceName,
		ProspectEmail: state.ProspectEmail,
		State:         state.State,
		LastModified:  lastModified,
	}

	return Record{NativeID: state.ID, Apply: func(database *sql.DB) error {
		return db.UpsertEnrollment(database, enrollment)
	}}
}
