package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each venue's
// latest observation for a symbol lives at "price:{venue}:{symbol}" with
// fields "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(venue domain.Venue, symbol string) string {
	return "price:" + string(venue) + ":" + symbol
}

// SetPrice stores the latest price and observation time for a symbol on a
// venue.
func (pc *PriceCache) SetPrice(ctx context.Context, venue domain.Venue, symbol string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(venue, symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", venue, symbol, err)
	}
	return nil
}

// GetPrice retrieves the latest price and observation time for a symbol on a
// venue. It returns domain.ErrNotFound when no observation exists.
func (pc *PriceCache) GetPrice(ctx context.Context, venue domain.Venue, symbol string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(venue, symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s/%s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s/%s: %w", venue, symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s/%s: %w", venue, symbol, err)
	}

	return price, time.Unix(0, tsNano), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
