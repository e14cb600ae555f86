package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/sharelink"
)

// Provider is a mock chat-completion provider for testing.
type Provider struct {
	name         sharelink.ProviderName
	content      string
	remaining    string
	latency      time.Duration
	staticErr    error
	status       int
	responseFunc func(sharelink.ProviderRequest) (sharelink.ProviderResponse, error)
	probeFunc    func(sharelink.Auth) (string, error)

	callCount  atomic.Int64
	probeCount atomic.Int64

	mu       sync.Mutex
	requests []sharelink.ProviderRequest
}

var (
	_ sharelink.Provider    = (*Provider)(nil)
	_ sharelink.QuotaProber = (*Provider)(nil)
)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:    sharelink.ProviderGroq,
		content: "Hello from mock provider",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name sharelink.ProviderName) Option {
	return func(p *Provider) { p.name = name }
}

// WithContent sets the assistant content returned on success.
func WithContent(content string) Option {
	return func(p *Provider) { p.content = content }
}

// WithRemaining sets the rate-limit header value returned on success.
func WithRemaining(remaining string) Option {
	return func(p *Provider) { p.remaining = remaining }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithStatus makes the provider always fail with the given HTTP status.
func WithStatus(status int) Option {
	return func(p *Provider) { p.status = status }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(sharelink.ProviderRequest) (sharelink.ProviderResponse, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

// WithProbe enables quota probing with the given function.
func WithProbe(fn func(sharelink.Auth) (string, error)) Option {
	return func(p *Provider) { p.probeFunc = fn }
}

func (p *Provider) Name() sharelink.ProviderName { return p.name }

func (p *Provider) ChatCompletion(ctx context.Context, req sharelink.ProviderRequest) (sharelink.ProviderResponse, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return sharelink.ProviderResponse{}, ctx.Err()
		}
	}

	p.callCount.Add(1)
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.staticErr != nil {
		return sharelink.ProviderResponse{}, p.staticErr
	}

	if p.status != 0 {
		return sharelink.ProviderResponse{}, &sharelink.ProviderError{
			Provider: p.name,
			Status:   p.status,
			Message:  "mock failure",
		}
	}

	if p.responseFunc != nil {
		return p.responseFunc(req)
	}

	return sharelink.ProviderResponse{
		ID:                 "mock-response-id",
		Content:            p.content,
		Model:              req.Model,
		RateLimitRemaining: p.remaining,
	}, nil
}

func (p *Provider) SupportsQuotaProbe() bool { return p.probeFunc != nil }

func (p *Provider) ProbeQuota(_ context.Context, auth sharelink.Auth) (string, error) {
	p.probeCount.Add(1)
	if p.probeFunc == nil {
		return "", nil
	}
	return p.probeFunc(auth)
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// ProbeCount returns the number of quota probes made.
func (p *Provider) ProbeCount() int64 { return p.probeCount.Load() }

// Requests returns a copy of the requests received so far.
func (p *Provider) Requests() []sharelink.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sharelink.ProviderRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
