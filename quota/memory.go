package quota

import (
	"context"
	"sync"

	"github.com/ineyio/sharelink"
)

// MemoryQuotaStore is an in-memory QuotaStore. Samples live until the
// process exits or they are overwritten.
type MemoryQuotaStore struct {
	mu      sync.RWMutex
	samples map[sharelink.ProviderName]sharelink.QuotaSample
}

var _ sharelink.QuotaStore = (*MemoryQuotaStore)(nil)

// NewMemoryQuotaStore creates a new in-memory quota store.
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{
		samples: make(map[sharelink.ProviderName]sharelink.QuotaSample),
	}
}

// Record stores the sample, last write wins.
func (s *MemoryQuotaStore) Record(_ context.Context, sample sharelink.QuotaSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[sample.Provider] = sample
	return nil
}

// Remaining returns the last sample for the provider.
func (s *MemoryQuotaStore) Remaining(_ context.Context, provider sharelink.ProviderName) (sharelink.QuotaSample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[provider]
	return sample, ok, nil
}

// Snapshot returns every stored sample keyed by sharelink.QuotaKey.
func (s *MemoryQuotaStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.samples))
	for p, sample := range s.samples {
		out[sharelink.QuotaKey(p)] = sample.Remaining
	}
	return out
}
