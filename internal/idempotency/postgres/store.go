package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// claimLease bounds how long an unanswered claim blocks its key.
const claimLease = 2 * time.Minute

// Store keeps checkout idempotency keys alongside the order ledger. Keys
// older than ttl are treated as unused and may be claimed again.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewStore creates a Postgres-backed store. A zero ttl keeps keys until purged.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1
		  AND created_at > $2
		  AND (status_code <> 0 OR created_at > $3)
	`, key, s.cutoff(), leaseCutoff()).Scan(&resp.StatusCode, &resp.Body, &resp.OrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select idempotency key %s: %w", key, err)
	}
	return &resp, nil
}

// Claim inserts an in-flight placeholder for key. An expired key or an
// abandoned claim is taken over.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys AS k (key, status_code, body, order_id, created_at)
		VALUES ($1, 0, ''::bytea, '', $2)
		ON CONFLICT (key) DO UPDATE
		SET status_code = 0,
		    body        = ''::bytea,
		    order_id    = '',
		    created_at  = EXCLUDED.created_at
		WHERE k.created_at <= $3
		   OR (k.status_code = 0 AND k.created_at <= $4)
	`, key, time.Now().UTC(), s.cutoff(), leaseCutoff())
	if err != nil {
		return false, fmt.Errorf("claim idempotency key %s: %w", key, err)
	}
	return result.RowsAffected() == 1, nil
}

// Save records the response for key. It fills a pending claim, and otherwise
// only replaces a stored response once it has expired.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys AS k (key, status_code, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body        = EXCLUDED.body,
		    order_id    = EXCLUDED.order_id,
		    created_at  = EXCLUDED.created_at
		WHERE k.status_code = 0 OR k.created_at <= $6
	`, key, response.StatusCode, response.Body, response.OrderID, time.Now().UTC(), s.cutoff())
	if err != nil {
		return fmt.Errorf("save idempotency key %s: %w", key, err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND status_code = 0`, key,
	); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// Purge deletes keys older than maxAge and reports how many were removed.
func (s *Store) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < $1`,
		time.Now().UTC().Add(-maxAge),
	)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}

func (s *Store) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-s.ttl)
}

func leaseCutoff() time.Time {
	return time.Now().UTC().Add(-claimLease)
}
