package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuoteUnavailable means a venue could not price the asset (unknown
	// pair or transient connectivity failure). Safe to surface directly: it
	// occurs before any funds are committed.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrOrderRejected means the venue declined the order outright
	// (insufficient balance, invalid lot size). No funds were committed.
	ErrOrderRejected = errors.New("order rejected")

	// ErrOrderAmbiguous means the venue accepted the order but no response
	// was read (timeout, dropped connection). Funds may already be
	// committed; callers must not retry.
	ErrOrderAmbiguous = errors.New("order outcome ambiguous")

	// ErrTransferFailed means the withdrawal initiation was rejected.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrTransferPending means the transfer was initiated but not confirmed
	// within the wait budget. Non-terminal on the venue side; terminal for
	// the current attempt.
	ErrTransferPending = errors.New("transfer pending")

	// ErrUnrecognizedResponse means none of the known field names yielded a
	// parseable value from a venue payload. Never defaulted to zero.
	ErrUnrecognizedResponse = errors.New("unrecognized response shape")

	// ErrInvalidProfitInput means a profit calculation input was not a
	// finite number.
	ErrInvalidProfitInput = errors.New("invalid profit input")

	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrUnknownVenue = errors.New("unknown venue")
)

// UnrecognizedResponseError carries the raw venue payload so it can be logged
// and archived for offline reconciliation. It unwraps to
// ErrUnrecognizedResponse.
type UnrecognizedResponseError struct {
	Venue   string
	Op      string // "buy", "sell", "transfer"
	Payload map[string]any
}

func (e *UnrecognizedResponseError) Error() string {
	return fmt.Sprintf("%s: %s response has no recognized quantity field", e.Venue, e.Op)
}

func (e *UnrecognizedResponseError) Unwrap() error { return ErrUnrecognizedResponse }

// StrandedPositionError describes an asset left on a venue after a partial
// failure. It wraps the step's underlying error so errors.Is still matches
// the original fault class.
type StrandedPositionError struct {
	Venue    string
	Symbol   string
	Quantity float64
	Step     AttemptStep
	Err      error
}

func (e *StrandedPositionError) Error() string {
	return fmt.Sprintf("stranded position: %.8f %s on %s after %s failure: %v",
		e.Quantity, e.Symbol, e.Venue, e.Step, e.Err)
}

func (e *StrandedPositionError) Unwrap() error { return e.Err }
