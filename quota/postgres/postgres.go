// Package postgres provides a PostgreSQL-backed QuotaStore for sharelink.
//
// Samples are kept in a single table keyed by provider and upserted on every
// write, which gives durability across restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/sharelink"
)

// Store is a PostgreSQL-backed QuotaStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ sharelink.QuotaStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "sharelink_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed QuotaStore.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "sharelink_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) quotaTable() string { return s.tablePrefix + "quota_samples" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			remaining TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		);
	`, s.quotaTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("sharelink/postgres: ensure schema: %w", err)
	}
	return nil
}

// Record upserts the sample for the provider.
func (s *Store) Record(ctx context.Context, sample sharelink.QuotaSample) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (key, provider, remaining, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET remaining = EXCLUDED.remaining, observed_at = EXCLUDED.observed_at
	`, s.quotaTable())

	_, err := s.pool.Exec(ctx, q,
		sharelink.QuotaKey(sample.Provider),
		string(sample.Provider),
		sample.Remaining,
		sample.ObservedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sharelink/postgres: record: %w", err)
	}
	return nil
}

// Remaining returns the last sample for the provider.
func (s *Store) Remaining(ctx context.Context, provider sharelink.ProviderName) (sharelink.QuotaSample, bool, error) {
	q := fmt.Sprintf(`SELECT remaining, observed_at FROM %s WHERE key = $1`, s.quotaTable())

	sample := sharelink.QuotaSample{Provider: provider}
	err := s.pool.QueryRow(ctx, q, sharelink.QuotaKey(provider)).Scan(&sample.Remaining, &sample.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sharelink.QuotaSample{}, false, nil
	}
	if err != nil {
		return sharelink.QuotaSample{}, false, fmt.Errorf("sharelink/postgres: remaining: %w", err)
	}
	return sample, true, nil
}
