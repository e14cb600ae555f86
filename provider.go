package sharelink

import "context"

// Provider is the interface that chat-completion adapters must implement.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// ChatCompletion performs a synchronous chat completion.
	// Non-success responses are returned as *ProviderError and transport
	// failures as *NetworkError.
	ChatCompletion(ctx context.Context, req ProviderRequest) (ProviderResponse, error)
}

// QuotaProber is implemented by providers that can look up the remaining
// quota of a key out of band, for when the completion response carries no
// rate-limit header.
type QuotaProber interface {
	// SupportsQuotaProbe reports whether ProbeQuota is usable.
	SupportsQuotaProbe() bool

	// ProbeQuota returns the remaining quota for the key, or "" if the
	// provider reported nothing usable.
	ProbeQuota(ctx context.Context, auth Auth) (string, error)
}

// Auth holds authentication credentials for a provider.
type Auth struct {
	APIKey string `yaml:"api_key" json:"api_key"`
}

// ProviderRequest is the request sent to a provider adapter.
type ProviderRequest struct {
	Auth     Auth
	Model    string
	Messages []Message
}

// ProviderResponse is the response from a provider adapter.
type ProviderResponse struct {
	ID      string
	Content string
	Model   string

	// RateLimitRemaining is the provider's remaining-quota header, if sent.
	RateLimitRemaining string
}
