// ABOUTME: Source adapter contract for the sync engine
// ABOUTME: Adapters page through one external API and emit canonical records
package sync

import (
	"context"
	"database/sql"
)

// Record is one canonical item from a source page. Apply performs the
// idempotent warehouse upsert; it never talks to the network — adapters do
// all fetching inside Pager.Next so transport failures surface as fetch
// errors, not record errors. Invalid marks a record the adapter could not
// canonicalize (malformed payload); the engine counts it and moves on.
type Record struct {
	NativeID string
	Apply    func(database *sql.DB) error
	Invalid  error
}

// Page is one source page of records. Pagination is sequential: the engine
// finishes a page before requesting the next, and may stop cleanly between
// pages on cancellation.
type Page struct {
	Records []Record
}

// Pager walks one fetch invocation. Next returns (nil, nil) when the
// source is exhausted; Watermark is only meaningful after exhaustion.
type Pager interface {
	Next(ctx context.Context) (*Page, error)
	Watermark() string
}

// Adapter fetches from one external source. Implementations page through
// the source's native mechanism, map fields into canonical records, and
// surface rate limits as retryable errors. They never filter or
// deduplicate — that's the engine's job.
//
// CursorOrdered declares the partial-run watermark policy: when records
// arrive in watermark order the engine may advance past what was written
// even if some rows failed; time-windowed sources hold the watermark back
// so the whole window retries.
type Adapter interface {
	Source() string
	ObjectType() string
	CursorOrdered() bool
	Fetch(ctx context.Context, mode, watermark string) (Pager, error)
}
