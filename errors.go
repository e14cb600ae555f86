package sharelink

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrMissingAPIKey         = errors.New("sharelink: API key is missing")
	ErrUnknownProvider       = errors.New("sharelink: unknown provider")
	ErrProviderNotRegistered = errors.New("sharelink: provider not registered")
	ErrRateLimited           = errors.New("sharelink: rate limited by provider")
	ErrEmptyChoices          = errors.New("sharelink: empty choices in response")
	ErrUnknownFormat         = errors.New("sharelink: unknown link format")
)

// ConfigurationError is returned before any request is sent when the
// resolved provider configuration cannot be used.
type ConfigurationError struct {
	Provider ProviderName
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v for %s", e.Err, e.Provider)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ProviderError is a non-success answer from a provider.
// Message holds error.message from a JSON body, or the raw body otherwise.
type ProviderError struct {
	Provider ProviderName
	Status   int
	Body     string
	Message  string
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("sharelink: provider=%s status=%d: %s", e.Provider, e.Status, msg)
}

// Is makes errors.Is(err, ErrRateLimited) true for 429 responses.
func (e *ProviderError) Is(target error) bool {
	return target == ErrRateLimited && e.IsRateLimited()
}

// IsRateLimited reports whether the provider answered 429.
func (e *ProviderError) IsRateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// NetworkError wraps a transport failure talking to a provider.
type NetworkError struct {
	Provider ProviderName
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("sharelink: provider=%s: network: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if err is a ProviderError with status 429.
// Only these errors are eligible for the fallback provider.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.IsRateLimited()
}

// IsConfiguration returns true if err was raised before dispatch because of bad configuration.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
