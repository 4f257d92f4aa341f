package domain

import "context"

// ExchangeClient is the capability contract every venue variant implements.
// Implementations decode venue JSON into RawResponse but do not interpret
// it; normalization happens in one place so venue schema drift is handled
// uniformly.
//
// Each call is bounded by the client's configured timeout. A timeout on an
// order or transfer call must surface as ErrOrderAmbiguous or
// ErrTransferPending, never as a definite failure, because the side effect
// may already have happened on the venue.
type ExchangeClient interface {
	Name() Venue

	// Quote returns a fresh price for the asset. Fails with
	// ErrQuoteUnavailable.
	Quote(ctx context.Context, asset Asset) (Quote, error)

	// PlaceBuyOrder submits a market buy sized in quote currency.
	// Fails with ErrOrderRejected or ErrOrderAmbiguous.
	PlaceBuyOrder(ctx context.Context, asset Asset, quoteAmount float64) (RawResponse, error)

	// PlaceSellOrder submits a market sell sized in base units.
	// Same fault classes as PlaceBuyOrder.
	PlaceSellOrder(ctx context.Context, asset Asset, baseQuantity float64) (RawResponse, error)

	// TransferAsset initiates a withdrawal of baseQuantity to the deposit
	// address on the destination venue. Fails with ErrTransferFailed or
	// ErrTransferPending.
	TransferAsset(ctx context.Context, asset Asset, depositAddress string, baseQuantity float64) (RawResponse, error)

	// CheckConnection verifies authenticated connectivity.
	CheckConnection(ctx context.Context) error
}
