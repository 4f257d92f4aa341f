package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Insert appends one price observation.
func (s *PriceStore) Insert(ctx context.Context, p domain.PricePoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_history (symbol, venue, price, observed_at)
		VALUES ($1, $2, $3, $4)`,
		p.Symbol, string(p.Venue), p.Price, p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert price point: %w", err)
	}
	return nil
}

// InsertBatch appends price observations in a single round trip.
func (s *PriceStore) InsertBatch(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO price_history (symbol, venue, price, observed_at)
			VALUES ($1, $2, $3, $4)`,
			p.Symbol, string(p.Venue), p.Price, p.Timestamp,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: batch insert price points: %w", err)
		}
	}
	return nil
}

// Latest returns the most recent observation for a symbol on a venue.
func (s *PriceStore) Latest(ctx context.Context, symbol string, venue domain.Venue) (domain.PricePoint, error) {
	var p domain.PricePoint
	var venueStr string
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, venue, price, observed_at FROM price_history
		WHERE symbol = $1 AND venue = $2
		ORDER BY observed_at DESC LIMIT 1`,
		symbol, string(venue),
	).Scan(&p.ID, &p.Symbol, &venueStr, &p.Price, &p.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PricePoint{}, domain.ErrNotFound
		}
		return domain.PricePoint{}, fmt.Errorf("postgres: latest price %s/%s: %w", symbol, venue, err)
	}
	p.Venue = domain.Venue(venueStr)
	return p, nil
}

// History returns observations within [since, until], oldest first.
func (s *PriceStore) History(ctx context.Context, symbol string, venue domain.Venue, since, until time.Time) ([]domain.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, venue, price, observed_at FROM price_history
		WHERE symbol = $1 AND venue = $2 AND observed_at >= $3 AND observed_at <= $4
		ORDER BY observed_at ASC`,
		symbol, string(venue), since, until,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: price history %s/%s: %w", symbol, venue, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var venueStr string
		if err := rows.Scan(&p.ID, &p.Symbol, &venueStr, &p.Price, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		p.Venue = domain.Venue(venueStr)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: price history rows: %w", err)
	}
	return points, nil
}
