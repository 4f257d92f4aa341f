// Package binance implements the Binance spot variant of the exchange
// client contract.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	defaultBaseURL = "https://api.binance.com"
	// takerFeeRate is the standard spot taker fee used for previews.
	takerFeeRate = 0.001
)

// Client is the REST client for the Binance spot API.
type Client struct {
	baseURL      string
	apiKey       string
	apiSecret    string
	httpClient   *http.Client
	transferWait time.Duration
	pollEvery    time.Duration
}

// NewClient creates a new Binance REST client. transferWait bounds how long
// TransferAsset waits for a withdrawal to complete.
func NewClient(baseURL, apiKey, apiSecret string, callTimeout, transferWait time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if transferWait <= 0 {
		transferWait = 2 * time.Minute
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		httpClient:   &http.Client{Timeout: callTimeout},
		transferWait: transferWait,
		pollEvery:    5 * time.Second,
	}
}

// Name returns the venue identifier.
func (c *Client) Name() domain.Venue { return domain.VenueBinance }

// Quote returns the current ticker price for the asset's Binance symbol.
func (c *Client) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	symbol, err := asset.PairFor(domain.VenueBinance)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("binance: %w: %v", domain.ErrQuoteUnavailable, err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("binance: quote %s: %w: %v", symbol, domain.ErrQuoteUnavailable, err)
	}

	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("binance: decode ticker: %w: %v", domain.ErrQuoteUnavailable, err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return domain.Quote{}, fmt.Errorf("binance: ticker price %q: %w", resp.Price, domain.ErrQuoteUnavailable)
	}

	return domain.Quote{
		Venue:      domain.VenueBinance,
		Symbol:     asset.Symbol,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// PlaceBuyOrder submits a MARKET buy sized in quote currency (quoteOrderQty).
func (c *Client) PlaceBuyOrder(ctx context.Context, asset domain.Asset, quoteAmount float64) (domain.RawResponse, error) {
	symbol, err := asset.PairFor(domain.VenueBinance)
	if err != nil {
		return nil, fmt.Errorf("binance: %w: %v", domain.ErrOrderRejected, err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", strconv.FormatFloat(quoteAmount, 'f', -1, 64))
	return c.placeOrder(ctx, params)
}

// PlaceSellOrder submits a MARKET sell sized in base units, rounded down to
// the symbol's lot-size step so the venue does not reject it for precision.
func (c *Client) PlaceSellOrder(ctx context.Context, asset domain.Asset, baseQuantity float64) (domain.RawResponse, error) {
	symbol, err := asset.PairFor(domain.VenueBinance)
	if err != nil {
		return nil, fmt.Errorf("binance: %w: %v", domain.ErrOrderRejected, err)
	}

	qty := baseQuantity
	if info, err := c.getSymbolInfo(ctx, symbol); err == nil && info.StepSize > 0 {
		qty = math.Floor(baseQuantity/info.StepSize) * info.StepSize
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	return c.placeOrder(ctx, params)
}

func (c *Client) placeOrder(ctx context.Context, params url.Values) (domain.RawResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, classifyOrderErr(err)
	}

	var raw domain.RawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance: decode order response: %w: %v", domain.ErrOrderAmbiguous, err)
	}
	return raw, nil
}

// TransferAsset initiates a withdrawal to depositAddress and waits (bounded)
// for the withdrawal history to report it completed. The returned payload is
// the venue's own history record, which carries amount and transactionFee.
func (c *Client) TransferAsset(ctx context.Context, asset domain.Asset, depositAddress string, baseQuantity float64) (domain.RawResponse, error) {
	params := url.Values{}
	params.Set("coin", asset.Symbol)
	params.Set("address", depositAddress)
	params.Set("amount", strconv.FormatFloat(baseQuantity, 'f', -1, 64))

	body, err := c.doRequest(ctx, http.MethodPost, "/sapi/v1/capital/withdraw/apply", params, true)
	if err != nil {
		return nil, classifyTransferErr(err)
	}

	var resp withdrawApplyResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.ID == "" {
		return nil, fmt.Errorf("binance: withdrawal accepted but id unreadable: %w", domain.ErrTransferPending)
	}
	return c.awaitWithdrawal(ctx, asset.Symbol, resp.ID)
}

// awaitWithdrawal polls the withdrawal history until the record completes or
// the wait budget expires.
func (c *Client) awaitWithdrawal(ctx context.Context, coin, id string) (domain.RawResponse, error) {
	deadline := time.Now().Add(c.transferWait)
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("binance: withdrawal %s: %w: %v", id, domain.ErrTransferPending, ctx.Err())
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("binance: withdrawal %s not completed within %s: %w", id, c.transferWait, domain.ErrTransferPending)
		}

		params := url.Values{}
		params.Set("coin", coin)
		body, err := c.doRequest(ctx, http.MethodGet, "/sapi/v1/capital/withdraw/history", params, true)
		if err != nil {
			continue
		}
		var records []withdrawRecord
		if err := json.Unmarshal(body, &records); err != nil {
			continue
		}
		for _, rec := range records {
			if rec.ID != id {
				continue
			}
			if rec.Status != withdrawStatusCompleted {
				break
			}
			// Hand the venue's record to the normalizer untouched.
			return domain.RawResponse{
				"id":             rec.ID,
				"amount":         rec.Amount,
				"transactionFee": rec.TransactionFee,
				"coin":           rec.Coin,
				"txId":           rec.TxID,
				"status":         strconv.Itoa(rec.Status),
			}, nil
		}
	}
}

// PreviewOrder validates an order against /api/v3/order/test and estimates
// the taker fee from the current price. amount is sized like the real
// orders: quote currency for buys, base units for sells.
func (c *Client) PreviewOrder(ctx context.Context, asset domain.Asset, side domain.OrderSide, amount float64) (domain.OrderPreview, error) {
	symbol, err := asset.PairFor(domain.VenueBinance)
	if err != nil {
		return domain.OrderPreview{}, fmt.Errorf("binance: preview: %w", err)
	}

	quote, err := c.Quote(ctx, asset)
	if err != nil {
		return domain.OrderPreview{}, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", sideString(side))
	params.Set("type", "MARKET")

	var baseQty, orderValue float64
	if side == domain.OrderSideBuy {
		orderValue = amount
		baseQty = amount / quote.Price
		params.Set("quoteOrderQty", strconv.FormatFloat(amount, 'f', -1, 64))
	} else {
		baseQty = amount
		if info, err := c.getSymbolInfo(ctx, symbol); err == nil && info.StepSize > 0 {
			baseQty = math.Floor(amount/info.StepSize) * info.StepSize
		}
		orderValue = baseQty * quote.Price
		params.Set("quantity", strconv.FormatFloat(baseQty, 'f', -1, 64))
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order/test", params, true); err != nil {
		return domain.OrderPreview{}, fmt.Errorf("binance: preview order: %w", err)
	}

	return domain.OrderPreview{
		Venue: domain.VenueBinance,
		// The interpreter splits base/quote on the dash spelling.
		Pair:       asset.CoinbasePair,
		Side:       side,
		OrderTotal: orderValue,
		Commission: orderValue * takerFeeRate,
		BaseSize:   baseQty,
		QuotePrice: quote.Price,
	}, nil
}

// CheckConnection pings the API.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ping", nil, false); err != nil {
		return fmt.Errorf("binance: connection check: %w", err)
	}
	return nil
}

// getSymbolInfo fetches the lot-size filter for a symbol.
func (c *Client) getSymbolInfo(ctx context.Context, symbol string) (symbolInfo, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false)
	if err != nil {
		return symbolInfo{}, fmt.Errorf("binance: exchange info %s: %w", symbol, err)
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return symbolInfo{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return symbolInfo{}, fmt.Errorf("binance: symbol %s not found", symbol)
	}

	var info symbolInfo
	for _, f := range resp.Symbols[0].Filters {
		if f.FilterType != "LOT_SIZE" {
			continue
		}
		info.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
		info.MaxQty, _ = strconv.ParseFloat(f.MaxQty, 64)
		info.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
	}
	return info, nil
}

func sideString(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

// apiError is a non-2xx response from the venue.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// classifyOrderErr maps transport failures to the order fault classes: an
// explicit venue response is a rejection, everything else is ambiguous
// because the venue may have executed the order.
func classifyOrderErr(err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return fmt.Errorf("binance: %w: %v", domain.ErrOrderRejected, err)
	}
	return fmt.Errorf("binance: %w: %v", domain.ErrOrderAmbiguous, err)
}

func classifyTransferErr(err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return fmt.Errorf("binance: %w: %v", domain.ErrTransferFailed, err)
	}
	return fmt.Errorf("binance: %w: %v", domain.ErrTransferPending, err)
}

// doRequest performs one API call. Signed requests get a timestamp and an
// HMAC-SHA256 signature over the query string; all requests carry the API
// key header. Non-2xx responses return *apiError.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query = params.Encode()
		// The signature covers the query string exactly as sent and must be
		// appended last.
		query += "&signature=" + crypto.SignQueryHex(c.apiSecret, query)
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

var _ domain.ExchangeClient = (*Client)(nil)
