// Package feed collects price observations from the venues and fans them out
// to the cache and the history table for monitor mode.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Recorder buffers price observations and flushes them to the price store on
// an interval. The cache write happens synchronously on Record so the latest
// price is always current; the history write is batched.
type Recorder struct {
	cache  domain.PriceCache // optional; nil skips the cache
	store  domain.PriceStore // optional; nil skips history
	logger *slog.Logger

	mu  sync.Mutex
	buf []domain.PricePoint
}

// NewRecorder creates a Recorder. Either cache or store may be nil.
func NewRecorder(cache domain.PriceCache, store domain.PriceStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		cache:  cache,
		store:  store,
		logger: logger.With(slog.String("component", "price_recorder")),
	}
}

// Record accepts one observation. Cache errors are logged, not returned: a
// failed cache write must not stall the feed.
func (r *Recorder) Record(ctx context.Context, venue domain.Venue, symbol string, price float64, ts time.Time) {
	if r.cache != nil {
		if err := r.cache.SetPrice(ctx, venue, symbol, price, ts); err != nil {
			r.logger.WarnContext(ctx, "price cache write failed",
				slog.String("venue", string(venue)),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.store != nil {
		r.mu.Lock()
		r.buf = append(r.buf, domain.PricePoint{
			Symbol:    symbol,
			Venue:     venue,
			Price:     price,
			Timestamp: ts,
		})
		r.mu.Unlock()
	}
}

// Run flushes the buffer every flushInterval until ctx is cancelled, with a
// final flush on the way out.
func (r *Recorder) Run(ctx context.Context, flushInterval time.Duration) error {
	if r.store == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	points := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(points) == 0 {
		return
	}
	if err := r.store.InsertBatch(ctx, points); err != nil {
		r.logger.ErrorContext(ctx, "price history flush failed",
			slog.Int("points", len(points)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.DebugContext(ctx, "price history flushed", slog.Int("points", len(points)))
}
