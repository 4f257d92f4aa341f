// Package coinbase implements the Coinbase Advanced Trade variant of the
// exchange client contract.
package coinbase

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	defaultBaseURL = "https://api.coinbase.com"
	jwtHost        = "api.coinbase.com"
	brokeragePath  = "/api/v3/brokerage"
	jwtLifetime    = 2 * time.Minute
)

// Client is the REST client for the Coinbase Advanced Trade API.
type Client struct {
	baseURL      string
	keyName      string
	signingKey   *ecdsa.PrivateKey
	httpClient   *http.Client
	transferWait time.Duration
	pollEvery    time.Duration
}

// NewClient creates a new Coinbase REST client.
//
// keyName is the CDP API key identifier; the EC signing key is loaded
// separately with SetECPrivateKey. transferWait bounds how long
// TransferAsset waits for a withdrawal to confirm.
func NewClient(baseURL, keyName string, callTimeout, transferWait time.Duration) *Client {
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
		keyName:      keyName,
		httpClient:   &http.Client{Timeout: callTimeout},
		transferWait: transferWait,
		pollEvery:    5 * time.Second,
	}
}

// SetECPrivateKey loads an EC private key from PEM-encoded bytes and
// configures the client for ES256-signed JWT authentication.
func (c *Client) SetECPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("coinbase: no PEM block found in private key")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 as fallback.
		pkcs8Key, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return fmt.Errorf("coinbase: parse private key: %w (pkcs8: %v)", err, pkcs8Err)
		}
		ecKey, ok := pkcs8Key.(*ecdsa.PrivateKey)
		if !ok {
			return fmt.Errorf("coinbase: expected EC private key, got %T", pkcs8Key)
		}
		c.signingKey = ecKey
		return nil
	}

	c.signingKey = key
	return nil
}

// Name returns the venue identifier.
func (c *Client) Name() domain.Venue { return domain.VenueCoinbase }

// Quote returns the current ticker price for the asset's Coinbase pair.
func (c *Client) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	pair, err := asset.PairFor(domain.VenueCoinbase)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("coinbase: %w: %v", domain.ErrQuoteUnavailable, err)
	}

	path := fmt.Sprintf("/products/%s/ticker", url.PathEscape(pair))
	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("coinbase: quote %s: %w: %v", pair, domain.ErrQuoteUnavailable, err)
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("coinbase: decode ticker: %w: %v", domain.ErrQuoteUnavailable, err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return domain.Quote{}, fmt.Errorf("coinbase: ticker price %q: %w", resp.Price, domain.ErrQuoteUnavailable)
	}

	return domain.Quote{
		Venue:      domain.VenueCoinbase,
		Symbol:     asset.Symbol,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// PlaceBuyOrder submits an IOC market buy sized in quote currency
// (market_market_ioc quote_size).
func (c *Client) PlaceBuyOrder(ctx context.Context, asset domain.Asset, quoteAmount float64) (domain.RawResponse, error) {
	pair, err := asset.PairFor(domain.VenueCoinbase)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w: %v", domain.ErrOrderRejected, err)
	}
	order := map[string]any{
		"client_order_id": uuid.New().String(),
		"product_id":      pair,
		"side":            "BUY",
		"order_configuration": map[string]any{
			"market_market_ioc": map[string]string{
				"quote_size": strconv.FormatFloat(quoteAmount, 'f', -1, 64),
			},
		},
	}
	return c.placeOrder(ctx, order)
}

// PlaceSellOrder submits an IOC market sell sized in base units
// (market_market_ioc base_size). The quantity is rounded down to the
// product's base increment so the venue does not reject it for precision.
func (c *Client) PlaceSellOrder(ctx context.Context, asset domain.Asset, baseQuantity float64) (domain.RawResponse, error) {
	pair, err := asset.PairFor(domain.VenueCoinbase)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w: %v", domain.ErrOrderRejected, err)
	}
	if product, err := c.getProduct(ctx, pair); err == nil {
		if inc := parseFloatOrZero(product.BaseIncrement); inc > 0 {
			baseQuantity = math.Floor(baseQuantity/inc) * inc
		}
	}
	order := map[string]any{
		"client_order_id": uuid.New().String(),
		"product_id":      pair,
		"side":            "SELL",
		"order_configuration": map[string]any{
			"market_market_ioc": map[string]string{
				"base_size": strconv.FormatFloat(baseQuantity, 'f', -1, 64),
			},
		},
	}
	return c.placeOrder(ctx, order)
}

func (c *Client) placeOrder(ctx context.Context, order map[string]any) (domain.RawResponse, error) {
	body, err := c.doSignedRequest(ctx, http.MethodPost, "/orders", order)
	if err != nil {
		return nil, classifyOrderErr("coinbase", err)
	}

	var raw domain.RawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		// The order was accepted; an unreadable body means its outcome is
		// unknown, not that it was rejected.
		return nil, fmt.Errorf("coinbase: decode order response: %w: %v", domain.ErrOrderAmbiguous, err)
	}
	return raw, nil
}

// TransferAsset initiates a crypto withdrawal to depositAddress and waits
// (bounded) for the venue to report it sent.
func (c *Client) TransferAsset(ctx context.Context, asset domain.Asset, depositAddress string, baseQuantity float64) (domain.RawResponse, error) {
	payload := map[string]any{
		"currency": asset.Symbol,
		"amount":   strconv.FormatFloat(baseQuantity, 'f', -1, 64),
		"address":  depositAddress,
	}
	body, err := c.doSignedRequest(ctx, http.MethodPost, "/withdrawals/crypto", payload)
	if err != nil {
		return nil, classifyTransferErr("coinbase", err)
	}

	var raw domain.RawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("coinbase: decode withdrawal response: %w: %v", domain.ErrTransferPending, err)
	}

	id, _ := raw["id"].(string)
	status, _ := raw["status"].(string)
	if id == "" || completedStatus(status) {
		return raw, nil
	}
	return c.awaitWithdrawal(ctx, id, raw)
}

// awaitWithdrawal polls the withdrawal until it completes or the wait budget
// expires. Expiry surfaces as ErrTransferPending: the withdrawal may still
// land later, so this is not a definite failure.
func (c *Client) awaitWithdrawal(ctx context.Context, id string, raw domain.RawResponse) (domain.RawResponse, error) {
	deadline := time.Now().Add(c.transferWait)
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("coinbase: withdrawal %s: %w: %v", id, domain.ErrTransferPending, ctx.Err())
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("coinbase: withdrawal %s not confirmed within %s: %w", id, c.transferWait, domain.ErrTransferPending)
		}

		body, err := c.doSignedRequest(ctx, http.MethodGet, "/withdrawals/crypto/"+url.PathEscape(id), nil)
		if err != nil {
			// Transient status-poll failures do not decide the transfer
			// outcome; keep polling until the budget runs out.
			continue
		}
		var st withdrawalStatus
		if err := json.Unmarshal(body, &st); err != nil {
			continue
		}
		if completedStatus(st.Status) {
			var updated domain.RawResponse
			if err := json.Unmarshal(body, &updated); err == nil {
				return updated, nil
			}
			return raw, nil
		}
	}
}

func completedStatus(status string) bool {
	switch status {
	case "completed", "COMPLETED", "sent", "SENT":
		return true
	default:
		return false
	}
}

// getProduct fetches sizing metadata for a product.
func (c *Client) getProduct(ctx context.Context, pair string) (productResponse, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/products/"+url.PathEscape(pair), nil)
	if err != nil {
		return productResponse{}, fmt.Errorf("coinbase: get product %s: %w", pair, err)
	}
	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return productResponse{}, fmt.Errorf("coinbase: decode product: %w", err)
	}
	return resp, nil
}

// PreviewOrder asks the venue for a dry-run estimate of a market order and
// pairs it with the current price.
func (c *Client) PreviewOrder(ctx context.Context, asset domain.Asset, side domain.OrderSide, quoteAmount float64) (domain.OrderPreview, error) {
	pair, err := asset.PairFor(domain.VenueCoinbase)
	if err != nil {
		return domain.OrderPreview{}, fmt.Errorf("coinbase: preview: %w", err)
	}

	payload := map[string]any{
		"product_id": pair,
		"side":       sideString(side),
		"order_configuration": map[string]any{
			"market_market_ioc": map[string]string{
				"quote_size": strconv.FormatFloat(quoteAmount, 'f', -1, 64),
			},
		},
	}
	body, err := c.doSignedRequest(ctx, http.MethodPost, "/orders/preview", payload)
	if err != nil {
		return domain.OrderPreview{}, fmt.Errorf("coinbase: preview order: %w", err)
	}

	var resp previewResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderPreview{}, fmt.Errorf("coinbase: decode preview: %w", err)
	}

	quote, err := c.Quote(ctx, asset)
	if err != nil {
		return domain.OrderPreview{}, err
	}

	return domain.OrderPreview{
		Venue:      domain.VenueCoinbase,
		Pair:       pair,
		Side:       side,
		OrderTotal: parseFloatOrZero(resp.OrderTotal),
		Commission: parseFloatOrZero(resp.CommissionTotal),
		BaseSize:   parseFloatOrZero(resp.BaseSize),
		Slippage:   parseFloatOrZero(resp.Slippage),
		QuotePrice: quote.Price,
	}, nil
}

// CheckConnection verifies the signing key by fetching its permissions.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, err := c.doSignedRequest(ctx, http.MethodGet, "/key_permissions", nil); err != nil {
		return fmt.Errorf("coinbase: connection check: %w", err)
	}
	return nil
}

func sideString(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// apiError is a non-2xx response from the venue.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// classifyOrderErr maps transport-level failures to the order fault classes.
// Anything that happened after the request may have been received by the
// venue is ambiguous; only an explicit venue response is a rejection.
func classifyOrderErr(venue string, err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return fmt.Errorf("%s: %w: %v", venue, domain.ErrOrderRejected, err)
	}
	return fmt.Errorf("%s: %w: %v", venue, domain.ErrOrderAmbiguous, err)
}

// classifyTransferErr is the same policy for withdrawal initiation: venue
// said no vs. outcome unknown.
func classifyTransferErr(venue string, err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return fmt.Errorf("%s: %w: %v", venue, domain.ErrTransferFailed, err)
	}
	return fmt.Errorf("%s: %w: %v", venue, domain.ErrTransferPending, err)
}

// doSignedRequest performs a JWT-authenticated request against the brokerage
// API and returns the response body. Non-2xx responses return *apiError.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	requestPath := brokeragePath + path

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	// Without a signing key only public endpoints (ticker, products) work;
	// order and transfer calls will be rejected by the venue.
	if c.signingKey != nil {
		token, err := c.generateJWT(method, requestPath)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

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

// generateJWT builds the ES256-signed CDP JWT for one request. The uri claim
// binds the token to the method and path.
func (c *Client) generateJWT(method, requestPath string) (string, error) {
	if c.signingKey == nil {
		return "", errors.New("no signing key configured")
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	now := time.Now()
	header := map[string]any{
		"alg":   "ES256",
		"typ":   "JWT",
		"kid":   c.keyName,
		"nonce": hex.EncodeToString(nonce),
	}
	claims := map[string]any{
		"iss": "cdp",
		"sub": c.keyName,
		"nbf": now.Unix(),
		"exp": now.Add(jwtLifetime).Unix(),
		"uri": method + " " + jwtHost + requestPath,
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, c.signingKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("ecdsa sign: %w", err)
	}

	// JOSE encoding: fixed-width big-endian r || s.
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

var _ domain.ExchangeClient = (*Client)(nil)
