// ABOUTME: Sync orchestrator driving adapters through fetch, write, and watermark advance
// ABOUTME: Serializes runs per (source, object type) and records an audit row per invocation
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	gosync "sync"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

// ErrSyncInProgress is returned when a run for the same (source, object
// type) is still active. Runs must be serialized per pair so two runs
// never compute conflicting watermark advances.
var ErrSyncInProgress = errors.New("sync already in progress for this source and object type")

const defaultMaxFailureRate = 0.5

// Engine drives one sync invocation through its states: create a pending
// run record, fetch pages, upsert records, advance the watermark, finalize
// the run. Data is written before the watermark advances; a crash between
// the two replays an already-written window, which the idempotent upserts
// absorb.
type Engine struct {
	DB *sql.DB

	// MaxFailureRate is the fraction of failed records above which the
	// whole run is marked failed and the watermark stays put.
	MaxFailureRate float64

	mu      gosync.Mutex
	running map[string]bool
}

func NewEngine(database *sql.DB) *Engine {
	return &Engine{
		DB:             database,
		MaxFailureRate: defaultMaxFailureRate,
		running:        make(map[string]bool),
	}
}

// Run executes one sync for the adapter in the given mode and returns the
// finalized run record. The returned error is non-nil only for systemic
// failures (lock contention, fetch exhaustion, warehouse unavailability);
// per-record failures are absorbed into the run's counts.
func (e *Engine) Run(ctx context.Context, adapter Adapter, mode string) (*models.SyncRun, error) {
	key := adapter.Source() + "/" + adapter.ObjectType()
	if !e.tryLock(key) {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, key)
	}
	defer e.unlock(key)

	run, err := db.CreateSyncRun(e.DB, adapter.Source(), adapter.ObjectType(), mode)
	if err != nil {
		return nil, err
	}

	watermark := ""
	if mode != models.ModeFull {
		watermark, err = db.GetWatermark(e.DB, adapter.Source(), adapter.ObjectType())
		if err != nil {
			return e.fail(run, err)
		}
	}

	pager, err := adapter.Fetch(ctx, mode, watermark)
	if err != nil {
		return e.fail(run, fmt.Errorf("fetch failed: %w", err))
	}

	for {
		// Cooperative cancellation: finish the in-flight page, then stop.
		// Nothing is lost — the watermark hasn't advanced, so the next
		// run re-processes the window.
		if ctx.Err() != nil {
			return e.fail(run, ctx.Err())
		}

		page, err := pager.Next(ctx)
		if err != nil {
			return e.fail(run, fmt.Errorf("fetch failed after %d records: %w", run.RowsProcessed, err))
		}
		if page == nil {
			break
		}

		for _, record := range page.Records {
			if record.Invalid != nil {
				log.Printf("sync %s: skipping malformed record %s: %v", key, record.NativeID, record.Invalid)
				run.RowsFailed++
				continue
			}
			if err := record.Apply(e.DB); err != nil {
				log.Printf("sync %s: failed to write record %s: %v", key, record.NativeID, err)
				run.RowsFailed++
				continue
			}
			run.RowsProcessed++
		}
	}

	total := run.RowsProcessed + run.RowsFailed
	if run.RowsFailed > 0 && (run.RowsProcessed == 0 || float64(run.RowsFailed)/float64(total) > e.maxFailureRate()) {
		return e.fail(run, fmt.Errorf("%d of %d records failed", run.RowsFailed, total))
	}

	newWatermark := pager.Watermark()
	advance := true
	switch {
	case run.RowsFailed == 0:
		run.Status = models.RunSuccess
	case adapter.CursorOrdered():
		// Records arrived in watermark order, so everything written is
		// covered; skipped rows need a full sync to recover.
		run.Status = models.RunPartial
	default:
		// Time-windowed source: hold the watermark so the next run
		// retries the whole window.
		run.Status = models.RunPartial
		advance = false
	}

	if advance && newWatermark != "" {
		err := db.SetWatermark(e.DB, adapter.Source(), adapter.ObjectType(), newWatermark)
		switch {
		case errors.Is(err, db.ErrWatermarkRegression):
			// Data-quality anomaly, not a run failure: keep the stored
			// watermark and flag it.
			log.Printf("sync %s: %v", key, err)
		case err != nil:
			return e.fail(run, err)
		default:
			run.Watermark = newWatermark
		}
	}

	if err := db.FinishSyncRun(e.DB, run); err != nil {
		return run, err
	}
	return run, nil
}

func (e *Engine) fail(run *models.SyncRun, cause error) (*models.SyncRun, error) {
	run.Status = models.RunFailed
	msg := cause.Error()
	run.ErrorMessage = &msg
	if err := db.FinishSyncRun(e.DB, run); err != nil {
		log.Printf("sync: failed to finalize run %s: %v", run.ID, err)
	}
	return run, cause
}

func (e *Engine) maxFailureRate() float64 {
	if e.MaxFailureRate <= 0 {
		return defaultMaxFailureRate
	}
	return e.MaxFailureRate
}

func (e *Engine) tryLock(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[key] {
		return false
	}
	e.running[key] = true
	return true
}

func (e *Engine) unlock(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, key)
}
