package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Poller fetches quotes for a set of assets from one venue on a fixed
// interval and forwards them to a handler. It is the REST counterpart of the
// websocket feeds for venues without a usable stream.
type Poller struct {
	client   domain.ExchangeClient
	venue    domain.Venue
	assets   []domain.Asset
	interval time.Duration
	onPrice  func(ctx context.Context, venue domain.Venue, symbol string, price float64, ts time.Time)
	logger   *slog.Logger
}

// NewPoller creates a Poller for the given client and assets.
func NewPoller(
	client domain.ExchangeClient,
	assets []domain.Asset,
	interval time.Duration,
	onPrice func(ctx context.Context, venue domain.Venue, symbol string, price float64, ts time.Time),
	logger *slog.Logger,
) *Poller {
	venue := client.Name()
	return &Poller{
		client:   client,
		venue:    venue,
		assets:   assets,
		interval: interval,
		onPrice:  onPrice,
		logger: logger.With(
			slog.String("component", "price_poller"),
			slog.String("venue", string(venue)),
		),
	}
}

// Run polls until ctx is cancelled. Quote failures are logged and skipped;
// the loop keeps running.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	for _, asset := range p.assets {
		quote, err := p.client.Quote(ctx, asset)
		if err != nil {
			p.logger.WarnContext(ctx, "quote poll failed",
				slog.String("symbol", asset.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.onPrice(ctx, p.venue, asset.Symbol, quote.Price, quote.ObservedAt)
	}
}
