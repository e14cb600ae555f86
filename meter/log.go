package meter

import (
	"log/slog"
	"regexp"

	"github.com/ineyio/sharelink"
)

// LogMeter logs dispatch events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ sharelink.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAttempt(e sharelink.AttemptEvent) {
	m.Logger.Info("attempt",
		"dispatch_id", e.DispatchID,
		"provider", e.Provider,
		"model", e.Model,
		"attempt", e.AttemptNum,
		"fallback", e.Fallback,
	)
}

func (m *LogMeter) OnResult(e sharelink.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"dispatch_id", e.DispatchID,
			"provider", e.Provider,
			"model", e.Model,
			"attempt", e.AttemptNum,
			"duration_ms", e.Duration.Milliseconds(),
		)
	} else {
		m.Logger.Warn("result_error",
			"dispatch_id", e.DispatchID,
			"provider", e.Provider,
			"model", e.Model,
			"attempt", e.AttemptNum,
			"status", e.Status,
			"duration_ms", e.Duration.Milliseconds(),
			"error", Redact(errString(e.Error)),
		)
	}
}

func (m *LogMeter) OnQuota(e sharelink.QuotaEvent) {
	if e.Error != nil {
		m.Logger.Warn("quota_error",
			"dispatch_id", e.DispatchID,
			"provider", e.Provider,
			"source", e.Source,
			"error", Redact(errString(e.Error)),
		)
		return
	}
	m.Logger.Info("quota",
		"dispatch_id", e.DispatchID,
		"provider", e.Provider,
		"source", e.Source,
		"remaining", e.Remaining,
	)
}

// RedactedPlaceholder replaces credentials in logged text.
const RedactedPlaceholder = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	// Groq keys
	regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`),
	// OpenRouter / OpenAI style keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`Bearer\s+[A-Za-z0-9_.-]{8,}`),
}

// Redact replaces anything that looks like an API key.
// Providers sometimes echo the key back in error bodies.
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, RedactedPlaceholder)
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
