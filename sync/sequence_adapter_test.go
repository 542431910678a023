// ABOUTME: Unit tests for the marketing sequence adapter
// ABOUTME: Covers windowed filtering, offset paging, and enrollment validation
package sync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/corral/models"
)

func TestSequenceIncrementalFiltersOnWatermark(t *testing.T) {
	server := crmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/sequenceStates", r.URL.Path)
		assert.Equal(t, "2026-01-15T10:00:00Z..inf", r.URL.Query().Get("filter[updatedAt]"))
		_, _ = w.Write([]byte(`{"data": [], "meta": {}}`))
	})

	adapter, err := NewSequenceAdapter(server.URL, "tok")
	require.NoError(t, err)

	pager, err := adapter.Fetch(context.Background(), models.ModeIncremental, "2026-01-15T10:00:00Z")
	require.NoError(t, err)
	drainPager(t, pager)
}

func TestSequenceOffsetPaging(t *testing.T) {
	var offsets []string
	server := crmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("page[offset]")
		offsets = append(offsets, offset)

		if offset == "0" {
			_, _ = w.Write([]byte(`{
				"data": [{"id": "en-1", "sequence_id": "seq-1", "prospect_email": "jane@acme.com",
				          "state": "active", "updated_at": "2026-01-15T10:00:00Z"}],
				"meta": {"next_offset": 100}
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"data": [{"id": "en-2", "sequence_id": "seq-1", "prospect_email": "bob@acme.com",
			          "state": "finished", "updated_at": "2026-01-15T11:00:00Z"}],
			"meta": {}
		}`))
	})

	adapter, err := NewSequenceAdapter(server.URL, "tok")
	require.NoError(t, err)

	pager, err := adapter.Fetch(context.Background(), models.ModeFull, "")
	require.NoError(t, err)

	records := drainPager(t, pager)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"0", "100"}, offsets)
}

func TestSequenceWatermarkIsFetchStart(t *testing.T) {
	server := crmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [], "meta": {}}`))
	})

	adapter, err := NewSequenceAdapter(server.URL, "tok")
	require.NoError(t, err)

	before := time.Now().UTC().Add(-time.Second)
	pager, err := adapter.Fetch(context.Background(), models.ModeIncremental, "")
	require.NoError(t, err)
	drainPager(t, pager)

	watermark, err := time.Parse(time.RFC3339, pager.Watermark())
	require.NoError(t, err)
	assert.True(t, watermark.After(before))
}

func TestEnrollmentRecordValidation(t *testing.T) {
	assert.NotNil(t, enrollmentRecord(sequenceState{}).Invalid, "missing id")
	assert.NotNil(t, enrollmentRecord(sequenceState{ID: "en-1", UpdatedAt: "2026-01-15T10:00:00Z"}).Invalid,
		"missing prospect email")
	assert.NotNil(t, enrollmentRecord(sequenceState{ID: "en-1", ProspectEmail: "j@a.com", UpdatedAt: "soon"}).Invalid,
		"bad updated_at")

	good := enrollmentRecord(sequenceState{
		ID: "en-1", SequenceID: "seq-1", ProspectEmail: "jane@acme.com",
		State: "active", UpdatedAt: "2026-01-15T10:00:00Z",
	})
	assert.Nil(t, good.Invalid)
	assert.Equal(t, "en-1", good.NativeID)
}

func TestSequenceBadWatermarkRejected(t *testing.T) {
	adapter, err := NewSequenceAdapter("http://example.com", "tok")
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(), models.ModeIncremental, "cursor-ish")
	assert.Error(t, err)
}
