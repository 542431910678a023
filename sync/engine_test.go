// ABOUTME: Unit tests for the sync engine state machine
// ABOUTME: Uses a fake adapter to cover watermark policy, failure thresholds, and locking
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.InitSchema(database))
	return database
}

// fakeAdapter serves canned pages and records what it was asked for.
type fakeAdapter struct {
	source        string
	objectType    string
	cursorOrdered bool

	pages     [][]Record
	watermark string
	fetchErr  error
	pageErr   error

	gotMode      string
	gotWatermark string

	// release, when set, blocks Next until closed
	release chan struct{}
}

func (a *fakeAdapter) Source() string      { return a.source }
func (a *fakeAdapter) ObjectType() string  { return a.objectType }
func (a *fakeAdapter) CursorOrdered() bool { return a.cursorOrdered }

func (a *fakeAdapter) Fetch(ctx context.Context, mode, watermark string) (Pager, error) {
	a.gotMode = mode
	a.gotWatermark = watermark
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return &fakePager{adapter: a}, nil
}

type fakePager struct {
	adapter *fakeAdapter
	index   int
}

func (p *fakePager) Next(ctx context.Context) (*Page, error) {
	if p.adapter.release != nil {
		<-p.adapter.release
	}
	if p.adapter.pageErr != nil {
		return nil, p.adapter.pageErr
	}
	if p.index >= len(p.adapter.pages) {
		return nil, nil
	}
	page := &Page{Records: p.adapter.pages[p.index]}
	p.index++
	return page, nil
}

func (p *fakePager) Watermark() string { return p.adapter.watermark }

func okRecord(id string) Record {
	return Record{NativeID: id, Apply: func(database *sql.DB) error { return nil }}
}

func badRecord(id string) Record {
	return Record{NativeID: id, Invalid: fmt.Errorf("missing required field")}
}

func newFake() *fakeAdapter {
	return &fakeAdapter{
		source:     "crm",
		objectType: "contacts",
		watermark:  "2026-01-15T10:00:00Z",
	}
}

func TestRunSuccess(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.pages = [][]Record{
		{okRecord("r1"), okRecord("r2")},
		{okRecord("r3")},
	}

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 3, run.RowsProcessed)
	assert.Equal(t, 0, run.RowsFailed)
	assert.NotNil(t, run.FinishedAt)

	watermark, err := db.GetWatermark(database, "crm", "contacts")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15T10:00:00Z", watermark)
}

func TestRunPassesStoredWatermarkToAdapter(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	require.NoError(t, db.SetWatermark(database, "crm", "contacts", "2026-01-10T00:00:00Z"))

	adapter := newFake()
	_, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.ModeIncremental, adapter.gotMode)
	assert.Equal(t, "2026-01-10T00:00:00Z", adapter.gotWatermark)
}

func TestRunFullModeIgnoresWatermark(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	require.NoError(t, db.SetWatermark(database, "crm", "contacts", "2026-01-10T00:00:00Z"))

	adapter := newFake()
	_, err := engine.Run(context.Background(), adapter, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, models.ModeFull, adapter.gotMode)
	assert.Equal(t, "", adapter.gotWatermark)
}

func TestRunMalformedRecordsMakePartial(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	// 3 records, 1 malformed: below the failure threshold, run is partial
	adapter := newFake()
	adapter.cursorOrdered = true
	adapter.pages = [][]Record{
		{okRecord("r1"), badRecord("r2"), okRecord("r3")},
	}

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, run.Status)
	assert.Equal(t, 2, run.RowsProcessed)
	assert.Equal(t, 1, run.RowsFailed)

	// Cursor-ordered source: partial still advances the watermark
	watermark, _ := db.GetWatermark(database, "crm", "contacts")
	assert.Equal(t, "2026-01-15T10:00:00Z", watermark)
}

func TestRunPartialHoldsWatermarkForTimeWindowedSource(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.source = "gmail"
	adapter.objectType = "messages"
	adapter.cursorOrdered = false
	adapter.pages = [][]Record{
		{okRecord("r1"), badRecord("r2"), okRecord("r3")},
	}

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, run.Status)

	// Time-windowed source: the watermark stays put so the next run
	// retries the window
	watermark, _ := db.GetWatermark(database, "gmail", "messages")
	assert.Equal(t, "", watermark)
}

func TestRunFailureRateThreshold(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	// 2 of 3 failed: above the 50% threshold, the run fails outright
	adapter := newFake()
	adapter.pages = [][]Record{
		{badRecord("r1"), badRecord("r2"), okRecord("r3")},
	}

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.Error(t, err)

	assert.Equal(t, models.RunFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)

	watermark, _ := db.GetWatermark(database, "crm", "contacts")
	assert.Equal(t, "", watermark)
}

func TestRunAllRecordsFailedIsFailed(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.pages = [][]Record{{badRecord("r1")}}

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
}

func TestRunFetchErrorIsFailed(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.fetchErr = fmt.Errorf("upstream 503")

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.Error(t, err)

	assert.Equal(t, models.RunFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "upstream 503")

	// Audit row is finalized even for failed runs
	last, err := db.LastRun(database, "crm", "contacts")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, models.RunFailed, last.Status)
	assert.NotNil(t, last.FinishedAt)
}

func TestRunMidFetchErrorIsFailed(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.pageErr = fmt.Errorf("connection reset")

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)

	// Watermark untouched: the next run replays the window
	watermark, _ := db.GetWatermark(database, "crm", "contacts")
	assert.Equal(t, "", watermark)
}

func TestRunEmptyWindowStillAdvances(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.pages = nil // no new data

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 0, run.RowsProcessed)

	// An empty window is a success and still moves the watermark forward
	watermark, _ := db.GetWatermark(database, "crm", "contacts")
	assert.Equal(t, "2026-01-15T10:00:00Z", watermark)
}

func TestRunConcurrentSameStreamRejected(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	blocker := newFake()
	blocker.release = make(chan struct{})
	blocker.pages = [][]Record{{okRecord("r1")}}

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = engine.Run(context.Background(), blocker, models.ModeIncremental)
		close(done)
	}()

	<-started
	time.Sleep(20 * time.Millisecond) // let the first run take the lock

	second := newFake()
	_, err := engine.Run(context.Background(), second, models.ModeIncremental)
	assert.True(t, errors.Is(err, ErrSyncInProgress))

	close(blocker.release)
	<-done

	// With the first run finished, the stream is free again
	third := newFake()
	_, err = engine.Run(context.Background(), third, models.ModeIncremental)
	assert.NoError(t, err)
}

func TestRunDifferentStreamsRunIndependently(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	blocker := newFake()
	blocker.release = make(chan struct{})
	blocker.pages = [][]Record{{okRecord("r1")}}

	done := make(chan struct{})
	go func() {
		_, _ = engine.Run(context.Background(), blocker, models.ModeIncremental)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)

	other := newFake()
	other.objectType = "accounts"
	_, err := engine.Run(context.Background(), other, models.ModeIncremental)
	assert.NoError(t, err)

	close(blocker.release)
	<-done
}

func TestRunCancelledContext(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := newFake()
	adapter.pages = [][]Record{{okRecord("r1")}}

	run, err := engine.Run(ctx, adapter, models.ModeIncremental)
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)

	watermark, _ := db.GetWatermark(database, "crm", "contacts")
	assert.Equal(t, "", watermark)
}

func TestRunRecordApplyErrorCountsAsFailed(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	adapter := newFake()
	adapter.cursorOrdered = true
	adapter.pages = [][]Record{{
		okRecord("r1"),
		{NativeID: "r2", Apply: func(database *sql.DB) error { return fmt.Errorf("constraint violation") }},
		okRecord("r3"),
	}}

	run, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, run.Status)
	assert.Equal(t, 2, run.RowsProcessed)
	assert.Equal(t, 1, run.RowsFailed)
}

func TestRunIdempotentRerun(t *testing.T) {
	database := setupTestDB(t)
	engine := NewEngine(database)

	contact := &models.Contact{ID: "c-1", Name: "Jane", LastModified: time.Now().UTC()}
	applyContact := Record{NativeID: "c-1", Apply: func(d *sql.DB) error {
		return db.UpsertContact(d, contact)
	}}

	adapter := newFake()
	adapter.pages = [][]Record{{applyContact}}

	_, err := engine.Run(context.Background(), adapter, models.ModeIncremental)
	require.NoError(t, err)

	// Replaying the same window writes the same state, not duplicates
	adapter2 := newFake()
	adapter2.pages = [][]Record{{applyContact}}
	_, err = engine.Run(context.Background(), adapter2, models.ModeIncremental)
	require.NoError(t, err)

	var count int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&count))
	assert.Equal(t, 1, count)
}
