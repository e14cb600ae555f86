package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ineyio/sharelink"
)

// Base URLs and rate-limit headers of the supported providers.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	GroqRemainingHeader       = "x-ratelimit-remaining-requests"
	OpenRouterRemainingHeader = "x-ratelimit-remaining"

	OpenRouterKeyInfoPath = "/auth/key"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// Provider is an OpenAI-compatible chat completion adapter.
// Works with Groq, OpenRouter and anything else speaking /chat/completions.
type Provider struct {
	name            sharelink.ProviderName
	baseURL         string
	httpClient      *http.Client
	remainingHeader string
	keyInfoPath     string
}

var (
	_ sharelink.Provider    = (*Provider)(nil)
	_ sharelink.QuotaProber = (*Provider)(nil)
)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithRemainingHeader sets the response header carrying the remaining quota.
func WithRemainingHeader(h string) Option {
	return func(p *Provider) { p.remainingHeader = h }
}

// WithKeyInfoPath enables quota probing against baseURL+path.
func WithKeyInfoPath(path string) Option {
	return func(p *Provider) { p.keyInfoPath = path }
}

// New creates a new OpenAI-compatible provider.
func New(name sharelink.ProviderName, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewGroq creates a provider for Groq.
func NewGroq(opts ...Option) *Provider {
	defaults := []Option{WithRemainingHeader(GroqRemainingHeader)}
	return New(sharelink.ProviderGroq, GroqBaseURL, append(defaults, opts...)...)
}

// NewOpenRouter creates a provider for OpenRouter. OpenRouter often omits
// the rate-limit header, so the key-info endpoint is probed instead.
func NewOpenRouter(opts ...Option) *Provider {
	defaults := []Option{
		WithRemainingHeader(OpenRouterRemainingHeader),
		WithKeyInfoPath(OpenRouterKeyInfoPath),
	}
	return New(sharelink.ProviderOpenRouter, OpenRouterBaseURL, append(defaults, opts...)...)
}

// NewByName creates the adapter for a known provider.
func NewByName(name sharelink.ProviderName, opts ...Option) (*Provider, error) {
	switch name {
	case sharelink.ProviderGroq:
		return NewGroq(opts...), nil
	case sharelink.ProviderOpenRouter:
		return NewOpenRouter(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", sharelink.ErrUnknownProvider, name)
	}
}

func (p *Provider) Name() sharelink.ProviderName { return p.name }

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) ChatCompletion(ctx context.Context, req sharelink.ProviderRequest) (sharelink.ProviderResponse, error) {
	msgs := make([]apiMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = apiMessage{Role: m.Role, Content: m.Content}
	}

	jsonBody, err := json.Marshal(apiRequest{Model: req.Model, Messages: msgs})
	if err != nil {
		return sharelink.ProviderResponse{}, fmt.Errorf("sharelink: marshal request: %w", err)
	}

	httpResp, err := p.do(ctx, http.MethodPost, p.baseURL+"/chat/completions", req.Auth, bytes.NewReader(jsonBody))
	if err != nil {
		return sharelink.ProviderResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := p.mapHTTPError(httpResp); err != nil {
		return sharelink.ProviderResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return sharelink.ProviderResponse{}, fmt.Errorf("sharelink: decode response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return sharelink.ProviderResponse{}, &sharelink.ProviderError{
			Provider: p.name,
			Status:   httpResp.StatusCode,
			Message:  sharelink.ErrEmptyChoices.Error(),
		}
	}

	var remaining string
	if p.remainingHeader != "" {
		remaining = httpResp.Header.Get(p.remainingHeader)
	}

	return sharelink.ProviderResponse{
		ID:                 resp.ID,
		Content:            resp.Choices[0].Message.Content,
		Model:              resp.Model,
		RateLimitRemaining: remaining,
	}, nil
}

func (p *Provider) do(ctx context.Context, method, url string, auth sharelink.Auth, body io.Reader) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("sharelink: create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+auth.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &sharelink.NetworkError{Provider: p.name, Err: err}
	}

	return resp, nil
}

// mapHTTPError turns a non-2xx response into a *sharelink.ProviderError and
// closes its body.
func (p *Provider) mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	return &sharelink.ProviderError{
		Provider: p.name,
		Status:   resp.StatusCode,
		Body:     string(body),
		Message:  errorMessage(body),
	}
}

// errorMessage extracts error.message from a JSON body, falling back to the
// raw text.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	return strings.TrimSpace(string(body))
}
