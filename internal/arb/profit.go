package arb

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ProfitInputs are the normalized fills, accounting quotes, and fees for one
// completed attempt. All monetary fields are in quote-currency units; the
// orchestrator converts the transfer fee from base units before building
// this struct.
type ProfitInputs struct {
	BuyFilledQty     float64 // base units bought
	SellFilledQty    float64 // base units sold
	BuyQuotePrice    float64 // buy-venue quote at attempt start
	SellQuotePrice   float64 // sell-venue quote at attempt start
	BuyFee           float64
	SellFee          float64
	TransferFeeQuote float64
}

// Profit computes net profit:
//
//	sellFilled*sellQuote - buyFilled*buyQuote - buyFee - sellFee - transferFee
//
// Quotes are the prices observed before the orders executed, so this is
// accounting profit at attempt-start prices, not a guarantee of realized PnL
// under price movement during execution. The function is pure; the only
// failure mode is a non-finite input.
func Profit(in ProfitInputs) (float64, error) {
	for name, v := range map[string]float64{
		"buy_filled_qty":     in.BuyFilledQty,
		"sell_filled_qty":    in.SellFilledQty,
		"buy_quote_price":    in.BuyQuotePrice,
		"sell_quote_price":   in.SellQuotePrice,
		"buy_fee":            in.BuyFee,
		"sell_fee":           in.SellFee,
		"transfer_fee_quote": in.TransferFeeQuote,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("profit: %s is not finite: %w", name, domain.ErrInvalidProfitInput)
		}
	}

	sellTotal := in.SellFilledQty * in.SellQuotePrice
	buyTotal := in.BuyFilledQty * in.BuyQuotePrice
	return sellTotal - buyTotal - in.BuyFee - in.SellFee - in.TransferFeeQuote, nil
}
