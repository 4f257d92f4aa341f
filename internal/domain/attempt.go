package domain

import "time"

// AttemptState is one node of the arbitrage saga lifecycle:
//
//	INITIATED -> BUY_PENDING -> BOUGHT -> TRANSFER_PENDING -> TRANSFERRED
//	          -> SELL_PENDING -> SETTLED
//
// Any pending state may instead move to FAILED, which is absorbing: no
// automatic retry and no reversal of already-completed steps.
type AttemptState string

const (
	AttemptInitiated       AttemptState = "initiated"
	AttemptBuyPending      AttemptState = "buy_pending"
	AttemptBought          AttemptState = "bought"
	AttemptTransferPending AttemptState = "transfer_pending"
	AttemptTransferred     AttemptState = "transferred"
	AttemptSellPending     AttemptState = "sell_pending"
	AttemptSettled         AttemptState = "settled"
	AttemptFailed          AttemptState = "failed"
)

// Terminal reports whether the state accepts no further transitions.
func (s AttemptState) Terminal() bool {
	return s == AttemptSettled || s == AttemptFailed
}

// AttemptStep names the saga step a failure is attributed to.
type AttemptStep string

const (
	StepQuote    AttemptStep = "quote"
	StepBuy      AttemptStep = "buy"
	StepTransfer AttemptStep = "transfer"
	StepSell     AttemptStep = "sell"
)

// StrandedPosition records where the asset sits after a partial failure.
type StrandedPosition struct {
	Venue    Venue
	Quantity float64 // base units
}

// ArbAttempt is the saga's record of progress for one arbitrage execution.
// It is owned exclusively by a single orchestration call and persisted only
// after reaching a terminal state. A failed attempt describes the furthest
// completed step; the stranded asset and venue are derivable from the record
// without replaying logs.
type ArbAttempt struct {
	ID              string
	Symbol          string
	BuyVenue        Venue
	SellVenue       Venue
	RequestedAmount float64 // quote units committed to the buy
	State           AttemptState

	BuyQuote  *Quote
	SellQuote *Quote

	BuyOrder  *NormalizedOrder
	Transfer  *TransferResult
	SellOrder *NormalizedOrder

	Profit *float64 // quote units, set only when settled

	FailedStep          AttemptStep
	FailureReason       string
	NeedsReconciliation bool // funds may be in an unknown order state
	Stranded            *StrandedPosition

	StartedAt   time.Time
	CompletedAt *time.Time
}

// StrandedOn marks the attempt as holding qty base units on venue.
func (a *ArbAttempt) StrandedOn(venue Venue, qty float64) {
	a.Stranded = &StrandedPosition{Venue: venue, Quantity: qty}
}
