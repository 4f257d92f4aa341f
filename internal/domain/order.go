package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// RawResponse is a decoded venue JSON payload, kept schemaless because each
// venue names its fields differently. The normalizer owns turning one of
// these into a NormalizedOrder or TransferResult.
type RawResponse map[string]any

// NormalizedOrder is the canonical shape of an order fill, independent of
// which venue produced it. FilledQty must be positive for the order to count
// as a successful step; a missing fill field is a normalization failure, not
// a zero fill.
type NormalizedOrder struct {
	Venue        Venue
	Side         OrderSide
	RequestedQty float64 // quote units for buys, base units for sells
	FilledQty    float64 // base units actually executed
	Fee          float64 // quote units
	RawStatus    string
}

// TransferResult is the canonical shape of a cross-venue asset transfer.
// ReceivedQty may be less than SentQty (withdrawal/network fee) and is the
// authoritative input to the subsequent sell step.
type TransferResult struct {
	Symbol      string
	FromVenue   Venue
	ToVenue     Venue
	SentQty     float64
	ReceivedQty float64
	Fee         float64 // base units withheld by the transfer
}

// OrderPreview is a venue's dry-run estimate for an order, consumed by the
// preview interpreter.
type OrderPreview struct {
	Venue      Venue
	Pair       string
	Side       OrderSide
	OrderTotal float64 // quote units
	Commission float64 // quote units
	BaseSize   float64 // base units
	Slippage   float64 // fraction, e.g. 0.002
	QuotePrice float64 // current price at preview time
}
