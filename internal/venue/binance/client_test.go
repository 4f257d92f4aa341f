package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func testAsset() domain.Asset {
	return domain.NewAsset("ETH", "USDC", 10)
}

func newTestClient(srvURL string) *Client {
	c := NewClient(srvURL, "test-key", "test-secret", time.Second, 50*time.Millisecond)
	c.pollEvery = 5 * time.Millisecond
	return c
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDC", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"ETHUSDC","price":"2500.5"}`))
	}))
	defer srv.Close()

	quote, err := newTestClient(srv.URL).Quote(context.Background(), testAsset())
	require.NoError(t, err)
	assert.Equal(t, domain.VenueBinance, quote.Venue)
	assert.Equal(t, 2500.5, quote.Price)
}

func TestPlaceBuyOrderSignsQuery(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		w.Write([]byte(`{"executedQty":"1.0","status":"FILLED"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PlaceBuyOrder(context.Background(), testAsset(), 100)
	require.NoError(t, err)

	assert.Contains(t, rawQuery, "timestamp=")
	// The signature covers everything before it, so it must come last.
	idx := strings.Index(rawQuery, "&signature=")
	require.Positive(t, idx)
	assert.NotContains(t, rawQuery[idx+1:], "&")
}

func TestPlaceBuyOrderVenueErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PlaceBuyOrder(context.Background(), testAsset(), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.NotErrorIs(t, err, domain.ErrOrderAmbiguous)
}

func TestPlaceBuyOrderTimeoutIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"executedQty":"1.0"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", 50*time.Millisecond, time.Minute)
	_, err := c.PlaceBuyOrder(context.Background(), testAsset(), 100)
	require.Error(t, err)
	// The venue may have executed the order; a timeout is never a
	// definite rejection.
	assert.ErrorIs(t, err, domain.ErrOrderAmbiguous)
	assert.NotErrorIs(t, err, domain.ErrOrderRejected)
}

func TestTransferVenueErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-4026,"msg":"amount below minimum"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.NotErrorIs(t, err, domain.ErrTransferPending)
}

func TestTransferTimeoutIsPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"id":"w1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", 50*time.Millisecond, time.Minute)
	_, err := c.TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.Error(t, err)
	// The withdrawal may have been accepted; never a definite failure.
	assert.ErrorIs(t, err, domain.ErrTransferPending)
	assert.NotErrorIs(t, err, domain.ErrTransferFailed)
}

func TestTransferWaitBudgetExpiryIsPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sapi/v1/capital/withdraw/apply":
			w.Write([]byte(`{"id":"w1"}`))
		case "/sapi/v1/capital/withdraw/history":
			// Status 4 = processing, never completes.
			w.Write([]byte(`[{"id":"w1","amount":"1.0","transactionFee":"0.01","coin":"ETH","status":4}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransferPending)
}

func TestTransferCompletedReturnsHistoryRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sapi/v1/capital/withdraw/apply":
			w.Write([]byte(`{"id":"w1"}`))
		case "/sapi/v1/capital/withdraw/history":
			w.Write([]byte(`[{"id":"w1","amount":"0.99","transactionFee":"0.01","coin":"ETH","status":6,"txId":"0xabc"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.transferWait = time.Second
	raw, err := c.TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.NoError(t, err)
	assert.Equal(t, "0.99", raw["amount"])
	assert.Equal(t, "0.01", raw["transactionFee"])
}
