package arb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestProfitScenario(t *testing.T) {
	// Buy 1.0 unit at $100, transfer fee 0.01 unit ($1.05 at the $105 sell
	// quote), sell 0.99 units at $105, $0.50 fee each side.
	got, err := Profit(ProfitInputs{
		BuyFilledQty:     1.0,
		SellFilledQty:    0.99,
		BuyQuotePrice:    100,
		SellQuotePrice:   105,
		BuyFee:           0.50,
		SellFee:          0.50,
		TransferFeeQuote: 0.01 * 105,
	})
	require.NoError(t, err)
	// 0.99*105 - 1.0*100 - 0.50 - 0.50 - 1.05 = 1.90
	assert.InDelta(t, 1.90, got, 1e-9)
}

func TestProfitIdempotent(t *testing.T) {
	in := ProfitInputs{
		BuyFilledQty:   2.5,
		SellFilledQty:  2.48,
		BuyQuotePrice:  41.2,
		SellQuotePrice: 42.0,
		BuyFee:         0.11,
		SellFee:        0.13,
	}
	first, err := Profit(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Profit(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestProfitZeroFees(t *testing.T) {
	got, err := Profit(ProfitInputs{
		BuyFilledQty:   1,
		SellFilledQty:  1,
		BuyQuotePrice:  100,
		SellQuotePrice: 101,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestProfitCanBeNegative(t *testing.T) {
	got, err := Profit(ProfitInputs{
		BuyFilledQty:   1,
		SellFilledQty:  1,
		BuyQuotePrice:  100,
		SellQuotePrice: 99,
		BuyFee:         0.5,
		SellFee:        0.5,
	})
	require.NoError(t, err)
	assert.InDelta(t, -2.0, got, 1e-9)
}

func TestProfitRejectsNonFinite(t *testing.T) {
	bad := []ProfitInputs{
		{BuyFilledQty: math.NaN(), SellFilledQty: 1, BuyQuotePrice: 1, SellQuotePrice: 1},
		{BuyFilledQty: 1, SellFilledQty: 1, BuyQuotePrice: math.Inf(1), SellQuotePrice: 1},
		{BuyFilledQty: 1, SellFilledQty: 1, BuyQuotePrice: 1, SellQuotePrice: 1, TransferFeeQuote: math.Inf(-1)},
	}
	for _, in := range bad {
		_, err := Profit(in)
		assert.ErrorIs(t, err, domain.ErrInvalidProfitInput)
	}
}
