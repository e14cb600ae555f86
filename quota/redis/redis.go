// Package redis provides a Redis-backed QuotaStore for sharelink.
//
// Each provider's sample is a Redis hash under <prefix><provider>Remaining,
// so several processes sharing one Redis see the same last-known quota.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/sharelink"
)

// Store is a Redis-backed QuotaStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string

	// owned is set when the Store created its own client.
	owned *goredis.Client
}

var _ sharelink.QuotaStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "sharelink:quota:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed QuotaStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "sharelink:quota:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL parses a redis:// URL and creates a Store with its own client.
func NewFromURL(url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("sharelink/redis: parse url: %w", err)
	}
	client := goredis.NewClient(o)
	s := New(client, opts...)
	s.owned = client
	return s, nil
}

// Close closes the client created by NewFromURL. Clients passed to New are
// left to the caller.
func (s *Store) Close() error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close()
}

func (s *Store) key(p sharelink.ProviderName) string {
	return s.keyPrefix + sharelink.QuotaKey(p)
}

// Record overwrites the sample for the provider.
func (s *Store) Record(ctx context.Context, sample sharelink.QuotaSample) error {
	err := s.client.HSet(ctx, s.key(sample.Provider),
		"remaining", sample.Remaining,
		"observed_at", sample.ObservedAt.UTC().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("sharelink/redis: record: %w", err)
	}
	return nil
}

// Remaining returns the last sample for the provider.
func (s *Store) Remaining(ctx context.Context, provider sharelink.ProviderName) (sharelink.QuotaSample, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(provider), "remaining", "observed_at").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return sharelink.QuotaSample{}, false, nil
		}
		return sharelink.QuotaSample{}, false, fmt.Errorf("sharelink/redis: remaining: %w", err)
	}

	// Not recorded yet.
	if vals[0] == nil {
		return sharelink.QuotaSample{}, false, nil
	}

	sample := sharelink.QuotaSample{
		Provider:  provider,
		Remaining: vals[0].(string),
	}
	if v, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			sample.ObservedAt = time.UnixMilli(ms).UTC()
		}
	}
	return sample, true, nil
}
