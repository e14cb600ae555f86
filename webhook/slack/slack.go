// Package slack posts share text to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrMissingWebhookURL is returned when no webhook URL is configured.
var ErrMissingWebhookURL = errors.New("slack: webhook URL is missing")

// StatusError is a non-success answer from the webhook.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("slack: webhook status=%d: %s", e.Status, e.Body)
}

// Client posts messages to incoming webhooks.
type Client struct {
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a webhook client.
func New(opts ...Option) *Client {
	c := &Client{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type payload struct {
	Text string `json:"text"`
}

// Post sends text to webhookURL.
func (c *Client) Post(ctx context.Context, webhookURL, text string) error {
	if webhookURL == "" {
		return ErrMissingWebhookURL
	}

	body, err := json.Marshal(payload{Text: text})
	if err != nil {
		return fmt.Errorf("slack: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(b)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
