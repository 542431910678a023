// ABOUTME: Unit tests for the telephony adapter against a fake call log API
// ABOUTME: Covers cursor paging, participant creation, and malformed calls
package sync

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

func TestCallsFetchPagesWithCursor(t *testing.T) {
	var cursors []string
	server := crmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/calls", r.URL.Path)
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)

		if cursor == "" {
			_, _ = w.Write([]byte(`{
				"items": [{"id": "call-1", "direction": "inbound", "from_number": "+13125550142",
				           "to_number": "+13125550100", "duration": 120, "started_at": "2026-01-15T10:00:00Z"}],
				"cursor": "cur-2"
			}`))
			return
		}
		_, _ = w.Write([]byte(`{"items": [], "cursor": "cur-2"}`))
	})

	adapter, err := NewCallsAdapter(server.URL, "tok")
	require.NoError(t, err)

	pager, err := adapter.Fetch(context.Background(), models.ModeIncremental, "")
	require.NoError(t, err)

	records := drainPager(t, pager)
	require.Len(t, records, 1)
	assert.Equal(t, "call-1", records[0].NativeID)
	assert.Equal(t, []string{"", "cur-2"}, cursors)

	// The provider cursor is the watermark
	assert.Equal(t, "cur-2", pager.Watermark())
}

func TestCallsResumeFromStoredCursor(t *testing.T) {
	server := crmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cur-9", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"items": [], "cursor": "cur-9"}`))
	})

	adapter, err := NewCallsAdapter(server.URL, "tok")
	require.NoError(t, err)

	pager, err := adapter.Fetch(context.Background(), models.ModeIncremental, "cur-9")
	require.NoError(t, err)
	drainPager(t, pager)

	// Empty window keeps the previous cursor
	assert.Equal(t, "cur-9", pager.Watermark())
}

func TestCallsFullModeIgnoresCursor(t *testing.T) {
	server := crmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"items": []}`))
	})

	adapter, err := NewCallsAdapter(server.URL, "tok")
	require.NoError(t, err)

	pager, err := adapter.Fetch(context.Background(), models.ModeFull, "cur-9")
	require.NoError(t, err)
	drainPager(t, pager)
}

func TestCallRecordCreatesPhoneParticipants(t *testing.T) {
	record := callRecord(callItem{
		ID:         "call-1",
		Direction:  "inbound",
		FromNumber: "(312) 555-0142",
		ToNumber:   "+1 312 555 0100",
		StartedAt:  "2026-01-15T10:00:00Z",
	})
	require.Nil(t, record.Invalid)

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.InitSchema(database))

	require.NoError(t, record.Apply(database))

	participants, err := db.GetParticipants(database, models.RecordCall, "call-1")
	require.NoError(t, err)
	require.Len(t, participants, 2)

	byRole := map[string]models.Participant{}
	for _, p := range participants {
		byRole[p.Role] = p
	}
	assert.Equal(t, "3125550142", byRole[models.RoleFrom].Normalized)
	assert.Equal(t, "3125550100", byRole[models.RoleTo].Normalized)
	assert.Equal(t, models.ConfidenceUnmatched, byRole[models.RoleFrom].Confidence)
}

func TestCallRecordMalformed(t *testing.T) {
	assert.NotNil(t, callRecord(callItem{StartedAt: "2026-01-15T10:00:00Z"}).Invalid, "missing id")
	assert.NotNil(t, callRecord(callItem{ID: "c-1", StartedAt: "yesterday"}).Invalid, "bad started_at")
}

func TestCallRecordShortNumberSkipsParticipant(t *testing.T) {
	record := callRecord(callItem{
		ID:         "call-1",
		FromNumber: "311", // too short to be a phone number
		ToNumber:   "+13125550100",
		StartedAt:  "2026-01-15T10:00:00Z",
	})
	require.Nil(t, record.Invalid)

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.InitSchema(database))

	require.NoError(t, record.Apply(database))

	participants, _ := db.GetParticipants(database, models.RecordCall, "call-1")
	require.Len(t, participants, 1)
	assert.Equal(t, models.RoleTo, participants[0].Role)
}
