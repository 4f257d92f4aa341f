package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultStreamURL = "wss://stream.binance.com:9443"
	readTimeout      = 2 * time.Minute
	reconnectDelay   = 2 * time.Second
)

// TickerHandler is called for each miniTicker close-price update.
type TickerHandler func(ctx context.Context, symbol string, price float64, ts time.Time)

// TickerStream subscribes to the combined miniTicker stream for a set of
// symbols and invokes the handler on each update. It reconnects on
// disconnect until the context is cancelled.
type TickerStream struct {
	streamURL string
	symbols   []string
	onPrice   TickerHandler
	logger    *slog.Logger
}

// NewTickerStream creates a stream for the given Binance symbols
// (e.g. "ETHUSDC").
func NewTickerStream(streamURL string, symbols []string, onPrice TickerHandler, logger *slog.Logger) *TickerStream {
	if streamURL == "" {
		streamURL = defaultStreamURL
	}
	return &TickerStream{
		streamURL: streamURL,
		symbols:   symbols,
		onPrice:   onPrice,
		logger:    logger.With(slog.String("component", "binance_ticker_stream")),
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with a fixed
// delay on disconnect.
func (s *TickerStream) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		s.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("binance ws disconnected, reconnecting", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *TickerStream) runConnection(ctx context.Context) error {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@miniTicker"
	}
	wsURL := s.streamURL + "/stream?streams=" + strings.Join(streams, "/")

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("binance ws dial: %w", err)
	}
	defer conn.Close()

	s.logger.Info("binance ws connected", slog.Int("symbols", len(s.symbols)))

	// Close the connection when the context ends so the blocked read
	// returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("binance ws set deadline: %w", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("binance ws read: %w", err)
		}

		var wrapped combinedStreamMessage
		if err := json.Unmarshal(msg, &wrapped); err != nil || wrapped.Data.Symbol == "" {
			continue
		}
		price, err := strconv.ParseFloat(wrapped.Data.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		ts := time.UnixMilli(wrapped.Data.EventTime).UTC()
		if s.onPrice != nil {
			s.onPrice(ctx, wrapped.Data.Symbol, price, ts)
		}
	}
}
