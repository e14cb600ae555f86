package sharelink

import "context"

// QuotaStore keeps the last quota sample per provider. Writes overwrite the
// previous sample; there is no expiry.
type QuotaStore interface {
	// Record stores the sample, replacing any previous one for the provider.
	Record(ctx context.Context, sample QuotaSample) error

	// Remaining returns the last sample for the provider. ok is false when
	// nothing has been recorded yet.
	Remaining(ctx context.Context, provider ProviderName) (sample QuotaSample, ok bool, err error)
}

// QuotaKey is the settings key a provider's sample is stored under.
func QuotaKey(p ProviderName) string {
	return string(p) + "Remaining"
}
