package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/arb"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/feed"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/venue/binance"
)

// ArbitrageMode runs the buy-transfer-sell saga for every configured asset,
// once or on a repeat interval. Failed attempts never abort the run: each
// attempt's terminal record is persisted and the loop moves on.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	buyVenue := domain.Venue(strings.ToLower(a.cfg.Arbitrage.BuyVenue))
	sellVenue := domain.Venue(strings.ToLower(a.cfg.Arbitrage.SellVenue))

	a.logger.InfoContext(ctx, "starting arbitrage mode",
		slog.String("buy_venue", string(buyVenue)),
		slog.String("sell_venue", string(sellVenue)),
		slog.Int("assets", len(deps.Assets)),
	)

	orch := arb.NewOrchestrator(
		deps.Venues,
		deps.Locks,
		deps.Attempts,
		deps.Archiver,
		deps.Notifier,
		arb.Config{
			CallTimeout:      a.cfg.Arbitrage.CallTimeout.Duration,
			TransferWait:     a.cfg.Arbitrage.TransferWait.Duration,
			LockTTL:          a.cfg.Arbitrage.LockTTL.Duration,
			DepositAddresses: a.cfg.Arbitrage.DepositAddresses,
		},
		a.logger,
	)

	runOnce := func() {
		for _, asset := range deps.Assets {
			if ctx.Err() != nil {
				return
			}
			amount := a.cfg.Arbitrage.Amount
			if amount <= 0 {
				amount = asset.Increment
			}
			attempt, err := orch.Execute(ctx, asset, buyVenue, sellVenue, amount)
			if err != nil {
				a.logger.WarnContext(ctx, "attempt did not settle",
					slog.String("attempt_id", attempt.ID),
					slog.String("symbol", asset.Symbol),
					slog.String("failed_step", string(attempt.FailedStep)),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "attempt settled",
				slog.String("attempt_id", attempt.ID),
				slog.String("symbol", asset.Symbol),
				slog.Float64("profit", *attempt.Profit),
			)
		}
	}

	runOnce()

	interval := a.cfg.Arbitrage.RepeatInterval.Duration
	if interval <= 0 {
		a.logger.InfoContext(ctx, "repeat_interval not set, exiting after single run")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

// MonitorMode runs the read-only price feeds: the Binance websocket stream
// and a Coinbase REST poller, both flowing through the recorder into the
// price cache and history table. No orders are placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Int("assets", len(deps.Assets)),
	)

	recorder := feed.NewRecorder(deps.PriceCache, deps.Prices, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return recorder.Run(ctx, a.cfg.Monitor.FlushInterval.Duration)
	})

	// Binance: websocket miniTicker stream. Stream symbols are Binance pair
	// spellings; map them back to asset symbols on receipt.
	pairToSymbol := make(map[string]string, len(deps.Assets))
	streamSymbols := make([]string, 0, len(deps.Assets))
	for _, asset := range deps.Assets {
		pairToSymbol[asset.BinancePair] = asset.Symbol
		streamSymbols = append(streamSymbols, asset.BinancePair)
	}
	stream := binance.NewTickerStream(
		deps.BinanceStreamURL,
		streamSymbols,
		func(ctx context.Context, pair string, price float64, ts time.Time) {
			symbol, ok := pairToSymbol[pair]
			if !ok {
				return
			}
			recorder.Record(ctx, domain.VenueBinance, symbol, price, ts)
		},
		a.logger,
	)
	g.Go(func() error {
		return stream.Run(ctx)
	})

	// Coinbase: REST polling (no public ticker stream wired).
	cb, err := deps.Venues.Client(domain.VenueCoinbase)
	if err != nil {
		return err
	}
	poller := feed.NewPoller(cb, deps.Assets, a.cfg.Monitor.PollInterval.Duration, recorder.Record, a.logger)
	g.Go(func() error {
		return poller.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && deps.Notifier != nil {
			_ = deps.Notifier.Notify(ctx, notify.EventFeedError, "Price feed stopped", err.Error())
		}
		return err
	}
	return nil
}

// CheckMode verifies connectivity and credentials against every venue, then
// exits. Intended for deploy-time smoke checks.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting connectivity check")

	var failed bool
	for _, client := range deps.Venues.All() {
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := client.CheckConnection(checkCtx)
		cancel()
		if err != nil {
			failed = true
			a.logger.ErrorContext(ctx, "venue check failed",
				slog.String("venue", string(client.Name())),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "venue check ok", slog.String("venue", string(client.Name())))
	}

	if failed {
		return errors.New("app: one or more venue checks failed")
	}
	return nil
}
