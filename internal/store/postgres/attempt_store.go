package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL. Attempts are
// written once, after reaching a terminal state; the nested step records are
// stored as JSONB so a failed attempt carries everything reconciliation
// needs in one row.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates a new AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptColumns = `id, symbol, buy_venue, sell_venue, requested_amount, state,
	buy_quote, sell_quote, buy_order, transfer, sell_order, profit,
	failed_step, failure_reason, needs_reconciliation, stranded_venue, stranded_qty,
	started_at, completed_at`

// Insert writes a terminal attempt.
func (s *AttemptStore) Insert(ctx context.Context, attempt domain.ArbAttempt) error {
	buyQuote, err := marshalNullable(attempt.BuyQuote)
	if err != nil {
		return fmt.Errorf("postgres: marshal buy quote: %w", err)
	}
	sellQuote, err := marshalNullable(attempt.SellQuote)
	if err != nil {
		return fmt.Errorf("postgres: marshal sell quote: %w", err)
	}
	buyOrder, err := marshalNullable(attempt.BuyOrder)
	if err != nil {
		return fmt.Errorf("postgres: marshal buy order: %w", err)
	}
	transfer, err := marshalNullable(attempt.Transfer)
	if err != nil {
		return fmt.Errorf("postgres: marshal transfer: %w", err)
	}
	sellOrder, err := marshalNullable(attempt.SellOrder)
	if err != nil {
		return fmt.Errorf("postgres: marshal sell order: %w", err)
	}

	var strandedVenue *string
	var strandedQty *float64
	if attempt.Stranded != nil {
		v := string(attempt.Stranded.Venue)
		strandedVenue = &v
		strandedQty = &attempt.Stranded.Quantity
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO arb_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		attempt.ID, attempt.Symbol, string(attempt.BuyVenue), string(attempt.SellVenue),
		attempt.RequestedAmount, string(attempt.State),
		buyQuote, sellQuote, buyOrder, transfer, sellOrder, attempt.Profit,
		nullableStep(attempt.FailedStep), nullableString(attempt.FailureReason),
		attempt.NeedsReconciliation, strandedVenue, strandedQty,
		attempt.StartedAt, attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// GetByID returns one attempt.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (domain.ArbAttempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM arb_attempts WHERE id = $1`, id)
	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbAttempt{}, domain.ErrNotFound
		}
		return domain.ArbAttempt{}, fmt.Errorf("postgres: get arb_attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListRecent returns attempts newest first.
func (s *AttemptStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ArbAttempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM arb_attempts
		ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_attempts: %w", err)
	}
	return collectAttempts(rows)
}

// ListUnreconciled returns failed attempts that left funds stranded or in an
// unknown order state, oldest first.
func (s *AttemptStore) ListUnreconciled(ctx context.Context, opts domain.ListOpts) ([]domain.ArbAttempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM arb_attempts
		WHERE state = $1 AND (needs_reconciliation OR stranded_venue IS NOT NULL)
		ORDER BY started_at ASC LIMIT $2 OFFSET $3`,
		string(domain.AttemptFailed), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unreconciled arb_attempts: %w", err)
	}
	return collectAttempts(rows)
}

func collectAttempts(rows pgx.Rows) ([]domain.ArbAttempt, error) {
	defer rows.Close()
	var list []domain.ArbAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arb_attempt: %w", err)
		}
		list = append(list, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: arb_attempts rows: %w", err)
	}
	return list, nil
}

func scanAttempt(row pgx.Row) (domain.ArbAttempt, error) {
	var a domain.ArbAttempt
	var buyVenue, sellVenue, state string
	var buyQuote, sellQuote, buyOrder, transfer, sellOrder []byte
	var failedStep, failureReason, strandedVenue *string
	var strandedQty *float64
	var completedAt *time.Time

	err := row.Scan(&a.ID, &a.Symbol, &buyVenue, &sellVenue, &a.RequestedAmount, &state,
		&buyQuote, &sellQuote, &buyOrder, &transfer, &sellOrder, &a.Profit,
		&failedStep, &failureReason, &a.NeedsReconciliation, &strandedVenue, &strandedQty,
		&a.StartedAt, &completedAt)
	if err != nil {
		return domain.ArbAttempt{}, err
	}

	a.BuyVenue = domain.Venue(buyVenue)
	a.SellVenue = domain.Venue(sellVenue)
	a.State = domain.AttemptState(state)
	a.CompletedAt = completedAt
	if failedStep != nil {
		a.FailedStep = domain.AttemptStep(*failedStep)
	}
	if failureReason != nil {
		a.FailureReason = *failureReason
	}
	if strandedVenue != nil && strandedQty != nil {
		a.Stranded = &domain.StrandedPosition{Venue: domain.Venue(*strandedVenue), Quantity: *strandedQty}
	}

	if err := unmarshalNullable(buyQuote, &a.BuyQuote); err != nil {
		return domain.ArbAttempt{}, fmt.Errorf("unmarshal buy quote: %w", err)
	}
	if err := unmarshalNullable(sellQuote, &a.SellQuote); err != nil {
		return domain.ArbAttempt{}, fmt.Errorf("unmarshal sell quote: %w", err)
	}
	if err := unmarshalNullable(buyOrder, &a.BuyOrder); err != nil {
		return domain.ArbAttempt{}, fmt.Errorf("unmarshal buy order: %w", err)
	}
	if err := unmarshalNullable(transfer, &a.Transfer); err != nil {
		return domain.ArbAttempt{}, fmt.Errorf("unmarshal transfer: %w", err)
	}
	if err := unmarshalNullable(sellOrder, &a.SellOrder); err != nil {
		return domain.ArbAttempt{}, fmt.Errorf("unmarshal sell order: %w", err)
	}
	return a, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.Quote:
		if t == nil {
			return nil, nil
		}
	case *domain.NormalizedOrder:
		if t == nil {
			return nil, nil
		}
	case *domain.TransferResult:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](data []byte, dst **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func nullableStep(s domain.AttemptStep) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
