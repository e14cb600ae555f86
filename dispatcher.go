package sharelink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher sends prompts to one of two providers, falling back to the
// other one once when the first is rate limited.
type Dispatcher struct {
	providers  map[ProviderName]Provider
	settings   SettingsStore
	quotaStore QuotaStore
	meter      Meter
	logger     *slog.Logger
	now        func() time.Time

	pending sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSettings sets the store that fills in missing provider configuration.
func WithSettings(s SettingsStore) Option {
	return func(d *Dispatcher) { d.settings = s }
}

// WithQuotaStore sets the quota store.
func WithQuotaStore(qs QuotaStore) Option {
	return func(d *Dispatcher) { d.quotaStore = qs }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(d *Dispatcher) { d.meter = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher for the given providers.
// Default components (empty settings, no-op quota store, no-op meter) are
// used unless overridden via options.
func NewDispatcher(providers []Provider, opts ...Option) (*Dispatcher, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("sharelink: at least one provider is required")
	}

	provMap := make(map[ProviderName]Provider, len(providers))
	for _, p := range providers {
		if !p.Name().Valid() {
			return nil, fmt.Errorf("sharelink: %w: %q", ErrUnknownProvider, p.Name())
		}
		provMap[p.Name()] = p
	}

	d := &Dispatcher{
		providers: provMap,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.settings == nil {
		d.settings = StaticSettings{}
	}
	if d.quotaStore == nil {
		d.quotaStore = noopQuotaStore{}
	}
	if d.meter == nil {
		d.meter = noopMeter{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	return d, nil
}

// Dispatch sends prompt to the resolved provider and returns the trimmed
// assistant content.
//
// If the primary provider answers 429 and a key for the other provider is
// stored, the prompt is sent there once. When that second attempt also
// fails, its error is logged and the primary error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, explicit ProviderConfig) (string, error) {
	id := uuid.New().String()

	var stored *Settings
	if !explicit.complete() {
		s, err := d.settings.Settings(ctx)
		if err != nil {
			return "", fmt.Errorf("sharelink: read settings: %w", err)
		}
		stored = &s
	}

	primary, err := resolvePrimary(explicit, stored)
	if err != nil {
		return "", err
	}
	if _, ok := d.providers[primary.provider]; !ok {
		return "", &ConfigurationError{Provider: primary.provider, Err: ErrProviderNotRegistered}
	}

	content, err := d.send(ctx, id, 1, primary, prompt)
	if err == nil {
		return content, nil
	}

	d.logger.Warn("provider request failed",
		"dispatch_id", id,
		"provider", primary.provider,
		"model", primary.model,
		"error", err,
	)

	if !IsRateLimited(err) {
		return "", err
	}

	if stored == nil {
		s, serr := d.settings.Settings(ctx)
		if serr != nil {
			d.logger.Warn("fallback skipped: read settings", "dispatch_id", id, "error", serr)
			return "", err
		}
		stored = &s
	}

	secondary, ok := resolveSecondary(primary.provider, *stored)
	if !ok {
		return "", err
	}
	if _, registered := d.providers[secondary.provider]; !registered {
		d.logger.Warn("fallback skipped: provider not registered",
			"dispatch_id", id,
			"provider", secondary.provider,
		)
		return "", err
	}

	d.logger.Info("fallback triggered",
		"dispatch_id", id,
		"from", primary.provider,
		"to", secondary.provider,
	)

	content, serr := d.send(ctx, id, 2, secondary, prompt)
	if serr != nil {
		// TODO: return errors.Join(err, serr) once callers stop matching on the primary error alone.
		d.logger.Warn("fallback request failed",
			"dispatch_id", id,
			"provider", secondary.provider,
			"model", secondary.model,
			"error", serr,
		)
		return "", err
	}
	return content, nil
}

// Complete dispatches a CompletionRequest.
func (d *Dispatcher) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return d.Dispatch(ctx, req.Prompt, req.Config)
}

// Wait blocks until all background quota captures have finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

func (d *Dispatcher) send(ctx context.Context, id string, attempt int, t target, prompt string) (string, error) {
	prov := d.providers[t.provider]

	d.meter.OnAttempt(AttemptEvent{
		DispatchID: id,
		Provider:   t.provider,
		Model:      t.model,
		AttemptNum: attempt,
		Fallback:   attempt > 1,
	})

	start := d.now()
	resp, err := prov.ChatCompletion(ctx, ProviderRequest{
		Auth:     t.auth,
		Model:    t.model,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	duration := d.now().Sub(start)

	if err != nil {
		var pe *ProviderError
		status := 0
		if errors.As(err, &pe) {
			status = pe.Status
		}
		d.meter.OnResult(ResultEvent{
			DispatchID: id,
			Provider:   t.provider,
			Model:      t.model,
			AttemptNum: attempt,
			Success:    false,
			Status:     status,
			Duration:   duration,
			Error:      err,
		})
		return "", err
	}

	d.meter.OnResult(ResultEvent{
		DispatchID: id,
		Provider:   t.provider,
		Model:      t.model,
		AttemptNum: attempt,
		Success:    true,
		Status:     200,
		Duration:   duration,
	})

	d.captureQuota(ctx, id, t, prov, resp.RateLimitRemaining)

	return strings.TrimSpace(resp.Content), nil
}

// captureQuota records the remaining quota from the response header, or
// probes for it. Both run in the background and never fail the dispatch.
func (d *Dispatcher) captureQuota(ctx context.Context, id string, t target, prov Provider, remaining string) {
	var prober QuotaProber
	if remaining == "" {
		p, ok := prov.(QuotaProber)
		if !ok || !p.SupportsQuotaProbe() {
			return
		}
		prober = p
	}

	// The capture outlives the dispatch; only the caller's values are kept.
	bg := context.WithoutCancel(ctx)

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()

		if prober == nil {
			d.recordQuota(bg, id, t.provider, remaining, QuotaFromHeader)
			return
		}

		rem, err := prober.ProbeQuota(bg, t.auth)
		if err != nil {
			d.logger.Warn("quota probe failed",
				"dispatch_id", id,
				"provider", t.provider,
				"error", err,
			)
			d.meter.OnQuota(QuotaEvent{DispatchID: id, Provider: t.provider, Source: QuotaFromProbe, Error: err})
			return
		}
		if rem == "" {
			return
		}
		d.recordQuota(bg, id, t.provider, rem, QuotaFromProbe)
	}()
}

func (d *Dispatcher) recordQuota(ctx context.Context, id string, p ProviderName, remaining string, src QuotaSource) {
	err := d.quotaStore.Record(ctx, QuotaSample{
		Provider:   p,
		Remaining:  remaining,
		ObservedAt: d.now(),
	})
	if err != nil {
		d.logger.Error("quota record failed",
			"dispatch_id", id,
			"provider", p,
			"error", err,
		)
	}
	d.meter.OnQuota(QuotaEvent{
		DispatchID: id,
		Provider:   p,
		Remaining:  remaining,
		Source:     src,
		Error:      err,
	})
}

// noopQuotaStore discards samples.
type noopQuotaStore struct{}

func (noopQuotaStore) Record(context.Context, QuotaSample) error { return nil }
func (noopQuotaStore) Remaining(context.Context, ProviderName) (QuotaSample, bool, error) {
	return QuotaSample{}, false, nil
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnAttempt(AttemptEvent) {}
func (noopMeter) OnResult(ResultEvent)   {}
func (noopMeter) OnQuota(QuotaEvent)     {}
