package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AttemptStore persists terminal arbitrage attempts. The store is
// append-only: attempts are written exactly once, after reaching SETTLED or
// FAILED.
type AttemptStore interface {
	Insert(ctx context.Context, attempt ArbAttempt) error
	GetByID(ctx context.Context, id string) (ArbAttempt, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]ArbAttempt, error)
	// ListUnreconciled returns failed attempts that left funds stranded or
	// in an unknown order state, oldest first.
	ListUnreconciled(ctx context.Context, opts ListOpts) ([]ArbAttempt, error)
}

// PriceStore persists price history rows.
type PriceStore interface {
	Insert(ctx context.Context, p PricePoint) error
	InsertBatch(ctx context.Context, points []PricePoint) error
	Latest(ctx context.Context, symbol string, venue Venue) (PricePoint, error)
	History(ctx context.Context, symbol string, venue Venue, since, until time.Time) ([]PricePoint, error)
}

// PriceCache provides fast access to the latest observed prices.
type PriceCache interface {
	SetPrice(ctx context.Context, venue Venue, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, venue Venue, symbol string) (float64, time.Time, error)
}

// LockManager provides mutual exclusion keyed by string. Concurrent attempts
// racing for the same balance on the same venue pair must serialize through
// one of these.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// PayloadArchiver stores raw venue payloads that failed normalization, for
// offline reconciliation.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, attemptID string, step AttemptStep, venue Venue, payload map[string]any) error
}
