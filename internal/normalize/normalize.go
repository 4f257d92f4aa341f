// Package normalize converts venue-specific order and transfer payloads into
// the canonical domain shapes. Venues name the same concepts differently
// (Binance reports executedQty, Coinbase filled_size or base_size), so each
// canonical field has a fixed, ordered list of named extractors that are
// tried until one yields a parseable value. No match is a hard failure
// carrying the raw payload; it is never treated as a zero or default value,
// since that would corrupt the subsequent transfer/sell sizing and the
// profit computation.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// fillFields is the precedence order for an order's executed base quantity.
// Binance spot first, then the Coinbase Advanced Trade spellings.
var fillFields = []string{"executedQty", "filled_size", "size", "amount", "base_size"}

// feeFields is the precedence order for an order's fee in quote units.
var feeFields = []string{"fee", "commission", "total_fees", "total_commission"}

// receivedFields is the precedence order for a transfer's credited quantity.
var receivedFields = []string{"receivedQty", "received_amount", "credited_amount", "amount"}

// transferFeeFields is the precedence order for a transfer's fee in base units.
var transferFeeFields = []string{"fee", "network_fee", "transactionFee"}

// statusFields is the precedence order for the venue's own status string.
var statusFields = []string{"status", "order_status", "state"}

// Order normalizes a raw order payload from venue. requestedQty is recorded
// as-is (quote units for buys, base units for sells). The fill quantity must
// resolve to a positive finite number; the fee defaults to zero only when no
// fee field is present at all, because several venues omit it for zero-fee
// fills rather than reporting 0.
func Order(venue domain.Venue, side domain.OrderSide, requestedQty float64, raw domain.RawResponse) (domain.NormalizedOrder, error) {
	filled, ok := firstPositive(raw, fillFields)
	if !ok {
		return domain.NormalizedOrder{}, &domain.UnrecognizedResponseError{
			Venue:   string(venue),
			Op:      string(side),
			Payload: raw,
		}
	}

	fee, _ := firstNonNegative(raw, feeFields)

	return domain.NormalizedOrder{
		Venue:        venue,
		Side:         side,
		RequestedQty: requestedQty,
		FilledQty:    filled,
		Fee:          fee,
		RawStatus:    firstString(raw, statusFields),
	}, nil
}

// Transfer normalizes a raw transfer payload. The received quantity must
// resolve to a positive finite number and becomes the authoritative input to
// the sell step. When the payload carries no fee field the fee is derived
// from sent minus received, which is what the quantity delta physically is.
func Transfer(symbol string, from, to domain.Venue, sentQty float64, raw domain.RawResponse) (domain.TransferResult, error) {
	received, ok := firstPositive(raw, receivedFields)
	if !ok {
		return domain.TransferResult{}, &domain.UnrecognizedResponseError{
			Venue:   string(from),
			Op:      "transfer",
			Payload: raw,
		}
	}

	fee, ok := firstNonNegative(raw, transferFeeFields)
	if !ok && sentQty > received {
		fee = sentQty - received
	}

	return domain.TransferResult{
		Symbol:      symbol,
		FromVenue:   from,
		ToVenue:     to,
		SentQty:     sentQty,
		ReceivedQty: received,
		Fee:         fee,
	}, nil
}

// firstPositive returns the first field that parses as a positive finite
// number.
func firstPositive(raw domain.RawResponse, fields []string) (float64, bool) {
	for _, f := range fields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		n, ok := asNumber(v)
		if ok && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// firstNonNegative returns the first field that parses as a finite number
// >= 0. Fees are legitimately zero, so this is looser than firstPositive.
func firstNonNegative(raw domain.RawResponse, fields []string) (float64, bool) {
	for _, f := range fields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		n, ok := asNumber(v)
		if ok && n >= 0 {
			return n, true
		}
	}
	return 0, false
}

func firstString(raw domain.RawResponse, fields []string) string {
	for _, f := range fields {
		if s, ok := raw[f].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// asNumber accepts the JSON forms venues actually emit: numbers, numeric
// strings, and json.Number.
func asNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
