package domain

import "fmt"

// Venue identifies a trading platform.
type Venue string

const (
	VenueCoinbase Venue = "coinbase"
	VenueBinance  Venue = "binance"
)

// Asset is immutable reference data for one tradeable cryptocurrency: its
// symbol plus the venue-specific pair identifiers. Created at configuration
// time and never mutated by the orchestrator.
type Asset struct {
	Symbol       string  // "ETH"
	Name         string  // display name, defaults to Symbol
	CoinbasePair string  // "ETH-USDC"
	BinancePair  string  // "ETHUSDC"
	Increment    float64 // default quote-currency amount per trade
}

// PairFor returns the venue-specific trading pair identifier.
func (a Asset) PairFor(v Venue) (string, error) {
	switch v {
	case VenueCoinbase:
		return a.CoinbasePair, nil
	case VenueBinance:
		return a.BinancePair, nil
	default:
		return "", fmt.Errorf("asset %s: %w: %s", a.Symbol, ErrUnknownVenue, v)
	}
}

// NewAsset builds an Asset for a symbol quoted in quoteCurrency, deriving the
// per-venue pair identifiers the way each venue spells them.
func NewAsset(symbol, quoteCurrency string, increment float64) Asset {
	return Asset{
		Symbol:       symbol,
		Name:         symbol,
		CoinbasePair: symbol + "-" + quoteCurrency,
		BinancePair:  symbol + quoteCurrency,
		Increment:    increment,
	}
}
