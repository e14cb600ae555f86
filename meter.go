package sharelink

import "time"

// Meter observes dispatch events for monitoring/logging.
type Meter interface {
	// OnAttempt is called before a provider is called.
	OnAttempt(event AttemptEvent)

	// OnResult is called when a provider returns a result.
	OnResult(event ResultEvent)

	// OnQuota is called when a quota sample was captured or failed to be.
	OnQuota(event QuotaEvent)
}

// AttemptEvent describes a request about to be sent.
type AttemptEvent struct {
	DispatchID string
	Provider   ProviderName
	Model      string
	AttemptNum int
	Fallback   bool
}

// ResultEvent describes the outcome of a provider call.
type ResultEvent struct {
	DispatchID string
	Provider   ProviderName
	Model      string
	AttemptNum int
	Success    bool
	Status     int
	Duration   time.Duration
	Error      error
}

// QuotaSource says where a quota sample came from.
type QuotaSource string

const (
	QuotaFromHeader QuotaSource = "header"
	QuotaFromProbe  QuotaSource = "probe"
)

// QuotaEvent describes a quota capture.
type QuotaEvent struct {
	DispatchID string
	Provider   ProviderName
	Remaining  string
	Source     QuotaSource
	Error      error
}
