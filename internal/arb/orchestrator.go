// Package arb implements the arbitrage execution saga: buy on the cheaper
// venue, transfer the asset, sell on the more expensive venue. Money is
// irrevocably committed at each step before the next is attempted, so a
// partial failure leaves an asset stranded on one venue; the orchestrator
// models that outcome explicitly instead of attempting compensating trades,
// which could themselves fail and compound the loss.
package arb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/normalize"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/preview"
)

// Notifier is the narrow alerting surface the orchestrator needs.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ClientResolver maps a venue name to its exchange client.
type ClientResolver interface {
	Client(v domain.Venue) (domain.ExchangeClient, error)
}

// OrderPreviewer is implemented by venue clients that can dry-run an order
// and estimate its cost and fees. amount follows the order sizing
// convention: quote currency for buys, base units for sells.
type OrderPreviewer interface {
	PreviewOrder(ctx context.Context, asset domain.Asset, side domain.OrderSide, amount float64) (domain.OrderPreview, error)
}

// Config holds the orchestrator's execution parameters.
type Config struct {
	// CallTimeout bounds each quote and order call.
	CallTimeout time.Duration
	// TransferWait bounds the transfer step, which includes the client's
	// withdrawal confirmation polling. The step context gets TransferWait
	// plus one CallTimeout of slack for the initiation call itself.
	TransferWait time.Duration
	// LockTTL is the distributed lock lifetime. Must exceed the worst-case
	// attempt duration (dominated by TransferWait) or a concurrent attempt
	// could start mid-saga.
	LockTTL time.Duration
	// DepositAddresses maps "<venue>:<symbol>" to the deposit address used
	// as the transfer destination.
	DepositAddresses map[string]string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.CallTimeout <= 0 {
		out.CallTimeout = 30 * time.Second
	}
	if out.TransferWait <= 0 {
		out.TransferWait = 2 * time.Minute
	}
	if out.LockTTL <= 0 {
		out.LockTTL = 5 * time.Minute
	}
	return out
}

// Orchestrator drives the three-step saga and owns the ArbAttempt record for
// the duration of one Execute call. Attempts for the same (symbol, buy
// venue, sell venue) key are serialized through the lock manager; everything
// within one attempt is strictly sequential.
type Orchestrator struct {
	venues   ClientResolver
	locks    domain.LockManager
	attempts domain.AttemptStore    // optional; nil skips persistence
	archiver domain.PayloadArchiver // optional; nil skips payload archiving
	notifier Notifier               // optional
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. attempts, archiver, and notifier
// may be nil; venues and locks must not be.
func NewOrchestrator(
	venues ClientResolver,
	locks domain.LockManager,
	attempts domain.AttemptStore,
	archiver domain.PayloadArchiver,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		venues:   venues,
		locks:    locks,
		attempts: attempts,
		archiver: archiver,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

func lockKey(symbol string, buy, sell domain.Venue) string {
	return fmt.Sprintf("arb:%s:%s:%s", symbol, buy, sell)
}

// Execute runs one arbitrage attempt and returns its terminal record. The
// returned error is nil only when the attempt settled; on failure it
// describes the furthest step reached, and the attempt record carries the
// stranded position when funds were left behind.
func (o *Orchestrator) Execute(ctx context.Context, asset domain.Asset, buyVenue, sellVenue domain.Venue, amount float64) (domain.ArbAttempt, error) {
	attempt := domain.ArbAttempt{
		ID:              uuid.New().String(),
		Symbol:          asset.Symbol,
		BuyVenue:        buyVenue,
		SellVenue:       sellVenue,
		RequestedAmount: amount,
		State:           domain.AttemptInitiated,
		StartedAt:       time.Now().UTC(),
	}
	log := o.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("symbol", asset.Symbol),
		slog.String("buy_venue", string(buyVenue)),
		slog.String("sell_venue", string(sellVenue)),
	)

	buyClient, err := o.venues.Client(buyVenue)
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepQuote, err)
	}
	sellClient, err := o.venues.Client(sellVenue)
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepQuote, err)
	}

	// The transfer destination must be resolvable before any money moves;
	// discovering a missing address after the buy would strand the position
	// for no reason.
	depositAddr := o.cfg.DepositAddresses[string(sellVenue)+":"+asset.Symbol]
	if depositAddr == "" {
		err := fmt.Errorf("no deposit address configured for %s on %s", asset.Symbol, sellVenue)
		return o.fail(ctx, log, attempt, domain.StepQuote, err)
	}

	unlock, err := o.locks.Acquire(ctx, lockKey(asset.Symbol, buyVenue, sellVenue), o.cfg.LockTTL)
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepQuote, err)
	}
	defer unlock()

	// Step 0: fresh quotes from both venues. Independent of each other, so
	// fetched concurrently; used only for profit accounting.
	buyQuote, sellQuote, err := o.fetchQuotes(ctx, buyClient, sellClient, asset)
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepQuote, err)
	}
	attempt.BuyQuote = &buyQuote
	attempt.SellQuote = &sellQuote

	// Dry-run the buy when the venue supports it, so the operator sees
	// cost, fees, and break-even before money moves. A failed preview
	// never blocks the attempt.
	if pv, ok := buyClient.(OrderPreviewer); ok {
		previewCtx, cancelPreview := context.WithTimeout(ctx, o.cfg.CallTimeout)
		p, err := pv.PreviewOrder(previewCtx, asset, domain.OrderSideBuy, amount)
		cancelPreview()
		if err != nil {
			log.WarnContext(ctx, "buy preview unavailable", slog.String("error", err.Error()))
		} else {
			log.InfoContext(ctx, "buy order preview", slog.String("summary", preview.Render(p)))
		}
	}

	// Step 1: market buy sized in quote currency.
	o.transition(ctx, log, &attempt, domain.AttemptBuyPending)
	buyRaw, err := o.callVenue(ctx, func(c context.Context) (domain.RawResponse, error) {
		return buyClient.PlaceBuyOrder(c, asset, amount)
	})
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepBuy, err)
	}
	buyOrder, err := normalize.Order(buyVenue, domain.OrderSideBuy, amount, buyRaw)
	if err != nil {
		// The order may have filled even though we cannot read the fill, so
		// this is a reconciliation case, not a clean rejection.
		o.archivePayload(ctx, log, attempt.ID, domain.StepBuy, buyVenue, buyRaw)
		return o.fail(ctx, log, attempt, domain.StepBuy, err)
	}
	attempt.BuyOrder = &buyOrder
	o.transition(ctx, log, &attempt, domain.AttemptBought)

	// Step 2: transfer the normalized fill quantity, never the requested
	// amount. Fills are frequently partial. The step budget is TransferWait
	// plus one call timeout of slack: the client polls for confirmation
	// inside this window, so a bare CallTimeout would cut the wait short.
	o.transition(ctx, log, &attempt, domain.AttemptTransferPending)
	transferCtx, cancelTransfer := context.WithTimeout(ctx, o.cfg.TransferWait+o.cfg.CallTimeout)
	transferRaw, err := buyClient.TransferAsset(transferCtx, asset, depositAddr, buyOrder.FilledQty)
	cancelTransfer()
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepTransfer, err)
	}
	transfer, err := normalize.Transfer(asset.Symbol, buyVenue, sellVenue, buyOrder.FilledQty, transferRaw)
	if err != nil {
		o.archivePayload(ctx, log, attempt.ID, domain.StepTransfer, buyVenue, transferRaw)
		return o.fail(ctx, log, attempt, domain.StepTransfer, err)
	}
	attempt.Transfer = &transfer
	o.transition(ctx, log, &attempt, domain.AttemptTransferred)

	// Step 3: market sell of the quantity that actually arrived.
	o.transition(ctx, log, &attempt, domain.AttemptSellPending)
	sellRaw, err := o.callVenue(ctx, func(c context.Context) (domain.RawResponse, error) {
		return sellClient.PlaceSellOrder(c, asset, transfer.ReceivedQty)
	})
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepSell, err)
	}
	sellOrder, err := normalize.Order(sellVenue, domain.OrderSideSell, transfer.ReceivedQty, sellRaw)
	if err != nil {
		o.archivePayload(ctx, log, attempt.ID, domain.StepSell, sellVenue, sellRaw)
		return o.fail(ctx, log, attempt, domain.StepSell, err)
	}
	attempt.SellOrder = &sellOrder

	// The transfer fee is denominated in base units; convert with the
	// sell-venue quote so every term the calculator sees is quote currency.
	profit, err := Profit(ProfitInputs{
		BuyFilledQty:     buyOrder.FilledQty,
		SellFilledQty:    sellOrder.FilledQty,
		BuyQuotePrice:    buyQuote.Price,
		SellQuotePrice:   sellQuote.Price,
		BuyFee:           buyOrder.Fee,
		SellFee:          sellOrder.Fee,
		TransferFeeQuote: transfer.Fee * sellQuote.Price,
	})
	if err != nil {
		return o.fail(ctx, log, attempt, domain.StepSell, err)
	}
	attempt.Profit = &profit

	o.transition(ctx, log, &attempt, domain.AttemptSettled)
	now := time.Now().UTC()
	attempt.CompletedAt = &now
	o.finalize(ctx, log, attempt)

	log.InfoContext(ctx, "arbitrage settled",
		slog.Float64("profit", profit),
		slog.Float64("buy_filled", buyOrder.FilledQty),
		slog.Float64("sell_filled", sellOrder.FilledQty),
	)
	return attempt, nil
}

// fetchQuotes grabs fresh quotes from both venues concurrently. Any failure
// maps to ErrQuoteUnavailable semantics and aborts before side effects.
func (o *Orchestrator) fetchQuotes(ctx context.Context, buy, sell domain.ExchangeClient, asset domain.Asset) (domain.Quote, domain.Quote, error) {
	var buyQuote, sellQuote domain.Quote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, cancel := context.WithTimeout(gctx, o.cfg.CallTimeout)
		defer cancel()
		q, err := buy.Quote(c, asset)
		if err != nil {
			return fmt.Errorf("%s: %w", buy.Name(), err)
		}
		buyQuote = q
		return nil
	})
	g.Go(func() error {
		c, cancel := context.WithTimeout(gctx, o.cfg.CallTimeout)
		defer cancel()
		q, err := sell.Quote(c, asset)
		if err != nil {
			return fmt.Errorf("%s: %w", sell.Name(), err)
		}
		sellQuote = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Quote{}, domain.Quote{}, err
	}
	return buyQuote, sellQuote, nil
}

// callVenue bounds a single order call with the configured timeout. Clients
// classify their own timeouts as ambiguous, so no reinterpretation happens
// here.
func (o *Orchestrator) callVenue(ctx context.Context, fn func(context.Context) (domain.RawResponse, error)) (domain.RawResponse, error) {
	c, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	return fn(c)
}

// transition advances the attempt state and logs it. Terminal states go
// through fail or the settled path instead.
func (o *Orchestrator) transition(ctx context.Context, log *slog.Logger, a *domain.ArbAttempt, next domain.AttemptState) {
	log.InfoContext(ctx, "state transition",
		slog.String("from", string(a.State)),
		slog.String("to", string(next)),
	)
	a.State = next
}

// fail moves the attempt to FAILED, attributing the failure to step and
// deriving the stranded position and reconciliation flag from how far the
// saga got. FAILED is absorbing: no retry, no compensation. The returned
// error is the cause, wrapped in a StrandedPositionError when funds were
// left behind.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, a domain.ArbAttempt, step domain.AttemptStep, cause error) (domain.ArbAttempt, error) {
	a.FailedStep = step
	a.FailureReason = cause.Error()

	switch step {
	case domain.StepQuote:
		// Nothing committed yet.
	case domain.StepBuy:
		if errors.Is(cause, domain.ErrOrderAmbiguous) || errors.Is(cause, domain.ErrUnrecognizedResponse) {
			// The venue may have filled the order without us reading the
			// result, so funds are in an unknown state on the buy venue.
			a.NeedsReconciliation = true
		}
	case domain.StepTransfer:
		// Bought asset still sits on the buy venue. A pending transfer also
		// needs a human to find out whether it eventually lands.
		if a.BuyOrder != nil {
			a.StrandedOn(a.BuyVenue, a.BuyOrder.FilledQty)
		}
		if errors.Is(cause, domain.ErrTransferPending) || errors.Is(cause, domain.ErrUnrecognizedResponse) {
			a.NeedsReconciliation = true
		}
	case domain.StepSell:
		// Asset arrived on the sell venue and stays there.
		if a.Transfer != nil {
			a.StrandedOn(a.SellVenue, a.Transfer.ReceivedQty)
		}
		if errors.Is(cause, domain.ErrOrderAmbiguous) || errors.Is(cause, domain.ErrUnrecognizedResponse) {
			a.NeedsReconciliation = true
		}
	}

	o.transition(ctx, log, &a, domain.AttemptFailed)
	now := time.Now().UTC()
	a.CompletedAt = &now

	log.ErrorContext(ctx, "arbitrage failed",
		slog.String("failed_step", string(step)),
		slog.String("reason", a.FailureReason),
		slog.Bool("needs_reconciliation", a.NeedsReconciliation),
	)
	o.finalize(ctx, log, a)

	if a.Stranded != nil {
		return a, &domain.StrandedPositionError{
			Venue:    string(a.Stranded.Venue),
			Symbol:   a.Symbol,
			Quantity: a.Stranded.Quantity,
			Step:     step,
			Err:      cause,
		}
	}
	return a, cause
}

// finalize persists the terminal attempt and dispatches alerts. Persistence
// and notification failures are logged, not propagated: the attempt outcome
// is already decided and the record is returned to the caller regardless.
func (o *Orchestrator) finalize(ctx context.Context, log *slog.Logger, a domain.ArbAttempt) {
	if o.attempts != nil {
		if err := o.attempts.Insert(ctx, a); err != nil {
			log.ErrorContext(ctx, "failed to persist attempt", slog.String("error", err.Error()))
		}
	}
	if o.notifier == nil {
		return
	}
	switch {
	case a.State == domain.AttemptSettled:
		_ = o.notifier.Notify(ctx, notify.EventSettled, "Arbitrage settled",
			fmt.Sprintf("%s %s→%s profit %.4f", a.Symbol, a.BuyVenue, a.SellVenue, *a.Profit))
	case a.Stranded != nil:
		_ = o.notifier.Notify(ctx, notify.EventStranded, "Stranded position",
			fmt.Sprintf("%.8f %s held on %s after %s failure (attempt %s)",
				a.Stranded.Quantity, a.Symbol, a.Stranded.Venue, a.FailedStep, a.ID))
	case a.NeedsReconciliation:
		_ = o.notifier.Notify(ctx, notify.EventReconcile, "Manual reconciliation required",
			fmt.Sprintf("%s attempt %s failed at %s with ambiguous outcome", a.Symbol, a.ID, a.FailedStep))
	}
}

func (o *Orchestrator) archivePayload(ctx context.Context, log *slog.Logger, attemptID string, step domain.AttemptStep, venue domain.Venue, raw domain.RawResponse) {
	log.ErrorContext(ctx, "unrecognized venue response",
		slog.String("step", string(step)),
		slog.String("venue", string(venue)),
		slog.Any("payload", map[string]any(raw)),
	)
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchivePayload(ctx, attemptID, step, venue, raw); err != nil {
		log.ErrorContext(ctx, "failed to archive payload", slog.String("error", err.Error()))
	}
}
