package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestOrderRecognizedFields(t *testing.T) {
	tests := []struct {
		name       string
		raw        domain.RawResponse
		wantFilled float64
		wantFee    float64
	}{
		{
			name:       "binance executedQty string",
			raw:        domain.RawResponse{"executedQty": "0.4975", "commission": "0.12", "status": "FILLED"},
			wantFilled: 0.4975,
			wantFee:    0.12,
		},
		{
			name:       "coinbase filled_size",
			raw:        domain.RawResponse{"filled_size": "1.25", "total_fees": "0.50"},
			wantFilled: 1.25,
			wantFee:    0.50,
		},
		{
			name:       "coinbase base_size fallback",
			raw:        domain.RawResponse{"base_size": "0.01"},
			wantFilled: 0.01,
			wantFee:    0,
		},
		{
			name:       "numeric json values",
			raw:        domain.RawResponse{"size": 2.5, "fee": 0.0},
			wantFilled: 2.5,
			wantFee:    0,
		},
		{
			name:       "json.Number",
			raw:        domain.RawResponse{"amount": json.Number("3.75")},
			wantFilled: 3.75,
			wantFee:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ord, err := Order(domain.VenueBinance, domain.OrderSideBuy, 100, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFilled, ord.FilledQty)
			assert.Equal(t, tt.wantFee, ord.Fee)
			assert.Equal(t, 100.0, ord.RequestedQty)
		})
	}
}

func TestOrderPrecedence(t *testing.T) {
	// executedQty outranks every Coinbase spelling when both appear.
	raw := domain.RawResponse{
		"executedQty": "1.0",
		"filled_size": "2.0",
		"base_size":   "3.0",
	}
	ord, err := Order(domain.VenueBinance, domain.OrderSideSell, 1, raw)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ord.FilledQty)
}

func TestOrderUnrecognizedShape(t *testing.T) {
	tests := []struct {
		name string
		raw  domain.RawResponse
	}{
		{"empty payload", domain.RawResponse{}},
		{"unknown fields only", domain.RawResponse{"qty_filled": "1.0", "ok": true}},
		{"zero fill is not a fill", domain.RawResponse{"executedQty": "0"}},
		{"negative fill", domain.RawResponse{"filled_size": "-1"}},
		{"non-numeric fill", domain.RawResponse{"size": "abc"}},
		{"non-finite fill", domain.RawResponse{"size": "NaN"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Order(domain.VenueCoinbase, domain.OrderSideBuy, 100, tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnrecognizedResponse)

			var ure *domain.UnrecognizedResponseError
			require.True(t, errors.As(err, &ure))
			assert.Equal(t, tt.raw, domain.RawResponse(ure.Payload))
		})
	}
}

func TestOrderStatusExtraction(t *testing.T) {
	ord, err := Order(domain.VenueBinance, domain.OrderSideBuy, 50,
		domain.RawResponse{"executedQty": "0.5", "status": "FILLED"})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", ord.RawStatus)
}

func TestTransfer(t *testing.T) {
	res, err := Transfer("ETH", domain.VenueCoinbase, domain.VenueBinance, 1.0,
		domain.RawResponse{"receivedQty": "0.99", "fee": "0.01"})
	require.NoError(t, err)
	assert.Equal(t, 0.99, res.ReceivedQty)
	assert.Equal(t, 0.01, res.Fee)
	assert.Equal(t, 1.0, res.SentQty)
	assert.Equal(t, domain.VenueCoinbase, res.FromVenue)
	assert.Equal(t, domain.VenueBinance, res.ToVenue)
}

func TestTransferFeeDerivedFromDelta(t *testing.T) {
	res, err := Transfer("ETH", domain.VenueCoinbase, domain.VenueBinance, 1.0,
		domain.RawResponse{"amount": "0.995"})
	require.NoError(t, err)
	assert.Equal(t, 0.995, res.ReceivedQty)
	assert.InDelta(t, 0.005, res.Fee, 1e-12)
}

func TestTransferZeroFeeBoundary(t *testing.T) {
	// Zero transfer fee: received equals sent exactly.
	res, err := Transfer("ETH", domain.VenueCoinbase, domain.VenueBinance, 1.0,
		domain.RawResponse{"receivedQty": "1.0", "fee": "0"})
	require.NoError(t, err)
	assert.Equal(t, res.SentQty, res.ReceivedQty)
	assert.Zero(t, res.Fee)
}

func TestTransferUnrecognizedShape(t *testing.T) {
	_, err := Transfer("ETH", domain.VenueCoinbase, domain.VenueBinance, 1.0,
		domain.RawResponse{"tx_id": "abc"})
	assert.ErrorIs(t, err, domain.ErrUnrecognizedResponse)
}
