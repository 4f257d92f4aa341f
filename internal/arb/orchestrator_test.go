package arb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/cache/mem"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// fakeClient scripts one venue's behavior and records the quantities it was
// asked to trade so tests can assert step-to-step plumbing.
type fakeClient struct {
	name domain.Venue

	quote    domain.Quote
	quoteErr error

	buyRaw domain.RawResponse
	buyErr error

	sellRaw domain.RawResponse
	sellErr error

	transferRaw domain.RawResponse
	transferErr error

	quoteCalls    int
	buyCalls      int
	sellCalls     int
	transferCalls int

	buyAmount   float64
	sellQty     float64
	transferQty float64

	buyDeadline      time.Time
	transferDeadline time.Time
}

func (f *fakeClient) Name() domain.Venue { return f.name }

func (f *fakeClient) Quote(_ context.Context, _ domain.Asset) (domain.Quote, error) {
	f.quoteCalls++
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeClient) PlaceBuyOrder(ctx context.Context, _ domain.Asset, quoteAmount float64) (domain.RawResponse, error) {
	f.buyCalls++
	f.buyAmount = quoteAmount
	f.buyDeadline, _ = ctx.Deadline()
	return f.buyRaw, f.buyErr
}

func (f *fakeClient) PlaceSellOrder(_ context.Context, _ domain.Asset, baseQuantity float64) (domain.RawResponse, error) {
	f.sellCalls++
	f.sellQty = baseQuantity
	return f.sellRaw, f.sellErr
}

func (f *fakeClient) TransferAsset(ctx context.Context, _ domain.Asset, _ string, baseQuantity float64) (domain.RawResponse, error) {
	f.transferCalls++
	f.transferQty = baseQuantity
	f.transferDeadline, _ = ctx.Deadline()
	return f.transferRaw, f.transferErr
}

func (f *fakeClient) CheckConnection(_ context.Context) error { return nil }

type fakeResolver map[domain.Venue]domain.ExchangeClient

func (r fakeResolver) Client(v domain.Venue) (domain.ExchangeClient, error) {
	c, ok := r[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, v)
	}
	return c, nil
}

type fakeAttemptStore struct {
	inserted []domain.ArbAttempt
}

func (s *fakeAttemptStore) Insert(_ context.Context, a domain.ArbAttempt) error {
	s.inserted = append(s.inserted, a)
	return nil
}
func (s *fakeAttemptStore) GetByID(context.Context, string) (domain.ArbAttempt, error) {
	return domain.ArbAttempt{}, domain.ErrNotFound
}
func (s *fakeAttemptStore) ListRecent(context.Context, domain.ListOpts) ([]domain.ArbAttempt, error) {
	return nil, nil
}
func (s *fakeAttemptStore) ListUnreconciled(context.Context, domain.ListOpts) ([]domain.ArbAttempt, error) {
	return nil, nil
}

type fakeArchiver struct {
	steps []domain.AttemptStep
}

func (a *fakeArchiver) ArchivePayload(_ context.Context, _ string, step domain.AttemptStep, _ domain.Venue, _ map[string]any) error {
	a.steps = append(a.steps, step)
	return nil
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

func testAsset() domain.Asset {
	return domain.NewAsset("ETH", "USDC", 100)
}

func testConfig() Config {
	return Config{
		CallTimeout:  time.Second,
		TransferWait: 45 * time.Second,
		LockTTL:      time.Minute,
		DepositAddresses: map[string]string{
			"binance:ETH":  "0xdeadbeef",
			"coinbase:ETH": "0xfeedface",
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// happyClients scripts the full scenario from the profit test: buy 1.0 ETH
// for $100, transfer loses 0.01 to fees, sell 0.99 at $105.
func happyClients() (*fakeClient, *fakeClient) {
	buy := &fakeClient{
		name:        domain.VenueCoinbase,
		quote:       domain.Quote{Venue: domain.VenueCoinbase, Symbol: "ETH", Price: 100, ObservedAt: time.Now()},
		buyRaw:      domain.RawResponse{"filled_size": "1.0", "total_fees": "0.50", "status": "FILLED"},
		transferRaw: domain.RawResponse{"receivedQty": "0.99", "fee": "0.01"},
	}
	sell := &fakeClient{
		name:    domain.VenueBinance,
		quote:   domain.Quote{Venue: domain.VenueBinance, Symbol: "ETH", Price: 105, ObservedAt: time.Now()},
		sellRaw: domain.RawResponse{"executedQty": "0.99", "commission": "0.50", "status": "FILLED"},
	}
	return buy, sell
}

func newTestOrchestrator(buy, sell *fakeClient) (*Orchestrator, *fakeAttemptStore, *fakeArchiver, *fakeNotifier) {
	store := &fakeAttemptStore{}
	archiver := &fakeArchiver{}
	notifier := &fakeNotifier{}
	o := NewOrchestrator(
		fakeResolver{domain.VenueCoinbase: buy, domain.VenueBinance: sell},
		mem.NewLockManager(),
		store, archiver, notifier,
		testConfig(),
		quietLogger(),
	)
	return o, store, archiver, notifier
}

func TestExecuteSettles(t *testing.T) {
	buy, sell := happyClients()
	o, store, _, notifier := newTestOrchestrator(buy, sell)

	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)

	assert.Equal(t, domain.AttemptSettled, attempt.State)
	require.NotNil(t, attempt.Profit)
	// 0.99*105 - 1.0*100 - 0.50 - 0.50 - 0.01*105 = 1.90
	assert.InDelta(t, 1.90, *attempt.Profit, 1e-9)

	// Each step consumed the previous step's actual output.
	assert.Equal(t, 100.0, buy.buyAmount)
	assert.Equal(t, 1.0, buy.transferQty)
	assert.Equal(t, 0.99, sell.sellQty)
	assert.Equal(t, attempt.Transfer.ReceivedQty, sell.sellQty)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, domain.AttemptSettled, store.inserted[0].State)
	require.NotNil(t, attempt.CompletedAt)
	assert.Equal(t, []string{"attempt_settled"}, notifier.events)
}

func TestExecuteSellUsesTransferOutputNotBuyRequest(t *testing.T) {
	buy, sell := happyClients()
	// Partial fill: requested $100 but only 0.5 ETH bought; transfer credits
	// 0.495.
	buy.buyRaw = domain.RawResponse{"filled_size": "0.5", "total_fees": "0.25"}
	buy.transferRaw = domain.RawResponse{"receivedQty": "0.495", "fee": "0.005"}
	sell.sellRaw = domain.RawResponse{"executedQty": "0.495", "commission": "0.25"}

	o, _, _, _ := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)

	assert.Equal(t, 0.5, buy.transferQty, "transfer must use the normalized fill")
	assert.Equal(t, 0.495, sell.sellQty, "sell must use the transfer's received quantity")
	assert.NotEqual(t, attempt.RequestedAmount, sell.sellQty)
}

func TestExecuteQuoteFailureAbortsCleanly(t *testing.T) {
	buy, sell := happyClients()
	sell.quoteErr = domain.ErrQuoteUnavailable

	o, store, _, notifier := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)

	assert.Equal(t, domain.AttemptFailed, attempt.State)
	assert.Equal(t, domain.StepQuote, attempt.FailedStep)
	assert.Nil(t, attempt.Stranded)
	assert.False(t, attempt.NeedsReconciliation)
	assert.Zero(t, buy.buyCalls, "no order may be placed without both quotes")
	require.Len(t, store.inserted, 1)
	assert.Empty(t, notifier.events)
}

func TestExecuteBuyRejectedIsClean(t *testing.T) {
	buy, sell := happyClients()
	buy.buyErr = fmt.Errorf("insufficient balance: %w", domain.ErrOrderRejected)

	o, _, _, _ := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)

	assert.Equal(t, domain.AttemptFailed, attempt.State)
	assert.Equal(t, domain.StepBuy, attempt.FailedStep)
	assert.Nil(t, attempt.Stranded, "rejected buy commits no funds")
	assert.False(t, attempt.NeedsReconciliation)
	assert.Zero(t, buy.transferCalls)
	assert.Zero(t, sell.sellCalls)
}

func TestExecuteBuyAmbiguousFlagsReconciliation(t *testing.T) {
	buy, sell := happyClients()
	buy.buyErr = domain.ErrOrderAmbiguous

	o, _, _, notifier := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)

	assert.Equal(t, domain.StepBuy, attempt.FailedStep)
	assert.True(t, attempt.NeedsReconciliation)
	assert.Contains(t, notifier.events, "attempt_reconcile")
}

func TestExecuteTransferFailedStrandsOnBuyVenue(t *testing.T) {
	buy, sell := happyClients()
	buy.transferErr = domain.ErrTransferFailed

	o, store, _, notifier := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	var stranded *domain.StrandedPositionError
	require.ErrorAs(t, err, &stranded)
	assert.Equal(t, "coinbase", stranded.Venue)
	assert.Equal(t, 1.0, stranded.Quantity)

	assert.Equal(t, domain.AttemptFailed, attempt.State)
	assert.Equal(t, domain.StepTransfer, attempt.FailedStep)
	require.NotNil(t, attempt.Stranded)
	assert.Equal(t, domain.VenueCoinbase, attempt.Stranded.Venue)
	assert.Equal(t, attempt.BuyOrder.FilledQty, attempt.Stranded.Quantity)
	assert.Zero(t, sell.sellCalls, "no sell after a failed transfer")
	assert.Contains(t, notifier.events, "attempt_stranded")

	// The stranded venue and quantity are derivable from the persisted
	// record alone.
	require.Len(t, store.inserted, 1)
	assert.Equal(t, attempt.Stranded, store.inserted[0].Stranded)
}

func TestExecuteTransferPendingIsStrandedAndFlagged(t *testing.T) {
	buy, sell := happyClients()
	buy.transferErr = fmt.Errorf("not confirmed within wait budget: %w", domain.ErrTransferPending)

	o, _, _, _ := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)

	assert.Equal(t, domain.StepTransfer, attempt.FailedStep)
	require.NotNil(t, attempt.Stranded)
	assert.True(t, attempt.NeedsReconciliation)
}

func TestExecuteSellAmbiguousNoRetry(t *testing.T) {
	buy, sell := happyClients()
	sell.sellErr = domain.ErrOrderAmbiguous

	o, _, _, notifier := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)

	assert.Equal(t, domain.AttemptFailed, attempt.State)
	assert.Equal(t, domain.StepSell, attempt.FailedStep)
	assert.True(t, attempt.NeedsReconciliation)
	require.NotNil(t, attempt.Stranded)
	assert.Equal(t, domain.VenueBinance, attempt.Stranded.Venue)
	assert.Equal(t, attempt.Transfer.ReceivedQty, attempt.Stranded.Quantity)
	assert.Equal(t, 1, sell.sellCalls, "ambiguous orders are never retried")
	assert.Contains(t, notifier.events, "attempt_stranded")
}

func TestExecuteUnrecognizedBuyShapeIsArchived(t *testing.T) {
	buy, sell := happyClients()
	buy.buyRaw = domain.RawResponse{"order_uuid": "abc", "ok": true}

	o, _, archiver, _ := newTestOrchestrator(buy, sell)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnrecognizedResponse)

	assert.Equal(t, domain.StepBuy, attempt.FailedStep)
	assert.True(t, attempt.NeedsReconciliation, "an unreadable fill is not a clean rejection")
	assert.Equal(t, []domain.AttemptStep{domain.StepBuy}, archiver.steps)
	assert.Zero(t, buy.transferCalls)
}

func TestExecuteLockHeldAbortsBeforeAnyCall(t *testing.T) {
	buy, sell := happyClients()
	locks := mem.NewLockManager()
	_, err := locks.Acquire(context.Background(), lockKey("ETH", domain.VenueCoinbase, domain.VenueBinance), time.Minute)
	require.NoError(t, err)

	o := NewOrchestrator(
		fakeResolver{domain.VenueCoinbase: buy, domain.VenueBinance: sell},
		locks, nil, nil, nil,
		testConfig(),
		quietLogger(),
	)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, domain.AttemptFailed, attempt.State)
	assert.Zero(t, buy.quoteCalls)
	assert.Zero(t, buy.buyCalls)
}

func TestExecuteMissingDepositAddressFailsBeforeBuy(t *testing.T) {
	buy, sell := happyClients()
	cfg := testConfig()
	cfg.DepositAddresses = nil

	o := NewOrchestrator(
		fakeResolver{domain.VenueCoinbase: buy, domain.VenueBinance: sell},
		mem.NewLockManager(), nil, nil, nil,
		cfg,
		quietLogger(),
	)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.Error(t, err)
	assert.Equal(t, domain.AttemptFailed, attempt.State)
	assert.Zero(t, buy.buyCalls)
}

type previewingClient struct {
	*fakeClient
	previews    int
	previewSide domain.OrderSide
	previewErr  error
}

func (p *previewingClient) PreviewOrder(_ context.Context, _ domain.Asset, side domain.OrderSide, amount float64) (domain.OrderPreview, error) {
	p.previews++
	p.previewSide = side
	if p.previewErr != nil {
		return domain.OrderPreview{}, p.previewErr
	}
	return domain.OrderPreview{
		Venue:      p.name,
		Pair:       "ETH-USDC",
		Side:       side,
		OrderTotal: amount,
		Commission: 0.5,
		BaseSize:   1,
		QuotePrice: 100,
	}, nil
}

func TestExecutePreviewsBuyWhenVenueSupportsIt(t *testing.T) {
	buy, sell := happyClients()
	pbuy := &previewingClient{fakeClient: buy}

	o := NewOrchestrator(
		fakeResolver{domain.VenueCoinbase: pbuy, domain.VenueBinance: sell},
		mem.NewLockManager(), nil, nil, nil,
		testConfig(),
		quietLogger(),
	)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)

	assert.Equal(t, domain.AttemptSettled, attempt.State)
	assert.Equal(t, 1, pbuy.previews)
	assert.Equal(t, domain.OrderSideBuy, pbuy.previewSide)
}

func TestExecutePreviewFailureDoesNotBlockAttempt(t *testing.T) {
	buy, sell := happyClients()
	pbuy := &previewingClient{fakeClient: buy, previewErr: fmt.Errorf("preview endpoint down")}

	o := NewOrchestrator(
		fakeResolver{domain.VenueCoinbase: pbuy, domain.VenueBinance: sell},
		mem.NewLockManager(), nil, nil, nil,
		testConfig(),
		quietLogger(),
	)
	attempt, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSettled, attempt.State)
	assert.Equal(t, 1, buy.buyCalls)
}

func TestExecuteTransferGetsWaitBudgetNotCallTimeout(t *testing.T) {
	buy, sell := happyClients()
	o, _, _, _ := newTestOrchestrator(buy, sell)

	start := time.Now()
	_, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)

	// Orders are bounded by the call timeout (1s).
	require.False(t, buy.buyDeadline.IsZero())
	assert.Less(t, buy.buyDeadline.Sub(start), 2*time.Second)

	// The transfer step gets the full confirmation wait (45s) plus slack;
	// a call-timeout bound would cut the withdrawal polling short.
	require.False(t, buy.transferDeadline.IsZero())
	assert.Greater(t, buy.transferDeadline.Sub(start), 40*time.Second)
}

func TestExecuteSequentialAttemptsReuseLock(t *testing.T) {
	buy, sell := happyClients()
	o, store, _, _ := newTestOrchestrator(buy, sell)

	_, err := o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)
	_, err = o.Execute(context.Background(), testAsset(), domain.VenueCoinbase, domain.VenueBinance, 100)
	require.NoError(t, err)
	assert.Len(t, store.inserted, 2)
}
