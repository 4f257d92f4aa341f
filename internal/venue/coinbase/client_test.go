package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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
	c := NewClient(srvURL, "organizations/test/apiKeys/test", time.Second, 50*time.Millisecond)
	c.pollEvery = 5 * time.Millisecond
	return c
}

func TestQuoteWithoutSigningKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/brokerage/products/ETH-USDC/ticker", r.URL.Path)
		// No key configured means no auth header; public endpoints still
		// work, which is what monitor mode relies on.
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"price":"2500.5"}`))
	}))
	defer srv.Close()

	quote, err := newTestClient(srv.URL).Quote(context.Background(), testAsset())
	require.NoError(t, err)
	assert.Equal(t, domain.VenueCoinbase, quote.Venue)
	assert.Equal(t, 2500.5, quote.Price)
}

func TestPlaceBuyOrderVenueErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/brokerage/orders", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"INSUFFICIENT_FUND"}`))
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
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-name", 50*time.Millisecond, time.Minute)
	_, err := c.PlaceBuyOrder(context.Background(), testAsset(), 100)
	require.Error(t, err)
	// The venue may have filled the order; a timeout is never a definite
	// rejection.
	assert.ErrorIs(t, err, domain.ErrOrderAmbiguous)
	assert.NotErrorIs(t, err, domain.ErrOrderRejected)
}

func TestTransferVenueErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid address"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.NotErrorIs(t, err, domain.ErrTransferPending)
}

func TestTransferCompletedImmediatelySkipsPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"id":"wd-1","status":"completed","amount":"0.99","fee":"0.01"}`))
		default:
			polls.Add(1)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	raw, err := newTestClient(srv.URL).TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.NoError(t, err)
	assert.Equal(t, "0.99", raw["amount"])
	assert.Zero(t, polls.Load())
}

func TestTransferWaitBudgetExpiryIsPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Write([]byte(`{"id":"wd-1","status":"pending"}`))
		default:
			w.Write([]byte(`{"id":"wd-1","status":"pending"}`))
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.Error(t, err)
	// The withdrawal may still land after the budget; pending, not failed.
	assert.ErrorIs(t, err, domain.ErrTransferPending)
	assert.NotErrorIs(t, err, domain.ErrTransferFailed)
}

func TestTransferPollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Write([]byte(`{"id":"wd-1","status":"pending"}`))
		default:
			if polls.Add(1) < 3 {
				w.Write([]byte(`{"id":"wd-1","status":"pending"}`))
				return
			}
			w.Write([]byte(`{"id":"wd-1","status":"completed","amount":"0.99","fee":"0.01"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.transferWait = time.Second
	raw, err := c.TransferAsset(context.Background(), testAsset(), "0xdeadbeef", 1)
	require.NoError(t, err)
	assert.Equal(t, "completed", raw["status"])
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}
