package sharelink

import (
	"fmt"
	"time"
)

// ProviderName identifies one of the two chat-completion backends.
type ProviderName string

const (
	ProviderGroq       ProviderName = "groq"
	ProviderOpenRouter ProviderName = "openrouter"
)

// Default models used when neither the caller nor the settings name one.
const (
	DefaultGroqModel       = "llama-3.1-8b-instant"
	DefaultOpenRouterModel = "google/gemma-3-27b-it:free"
)

// DefaultProvider is used when no provider is resolved.
const DefaultProvider = ProviderGroq

// Valid reports whether p is one of the known providers.
func (p ProviderName) Valid() bool {
	return p == ProviderGroq || p == ProviderOpenRouter
}

// Alternate returns the other provider, used as the rate-limit fallback.
func (p ProviderName) Alternate() ProviderName {
	if p == ProviderGroq {
		return ProviderOpenRouter
	}
	return ProviderGroq
}

// DefaultModel returns the literal fallback model for the provider.
func (p ProviderName) DefaultModel() string {
	switch p {
	case ProviderOpenRouter:
		return DefaultOpenRouterModel
	default:
		return DefaultGroqModel
	}
}

func (p ProviderName) String() string { return string(p) }

// ParseProviderName converts a user-supplied string into a ProviderName.
// The empty string is accepted and means "not set".
func ParseProviderName(s string) (ProviderName, error) {
	p := ProviderName(s)
	if s == "" || p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// ProviderConfig selects the provider, credential and model for a dispatch.
// Empty fields are filled from stored settings, then from defaults.
type ProviderConfig struct {
	Provider ProviderName
	APIKey   string
	Model    string
}

func (c ProviderConfig) complete() bool {
	return c.Provider != "" && c.APIKey != "" && c.Model != ""
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a prompt together with the provider it should go to.
type CompletionRequest struct {
	Prompt string
	Config ProviderConfig
}

// QuotaSample is the last-known remaining-usage signal for a provider.
// Remaining is either a count ("14399") or a derived amount ("$0.1234").
type QuotaSample struct {
	Provider   ProviderName
	Remaining  string
	ObservedAt time.Time
}
