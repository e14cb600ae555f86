package sharelink_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sl "github.com/ineyio/sharelink"
	"github.com/ineyio/sharelink/meter"
	"github.com/ineyio/sharelink/provider/mock"
	"github.com/ineyio/sharelink/provider/openaicompat"
	"github.com/ineyio/sharelink/quota"
)

// fakeProvider is an httptest server speaking the chat completion API.
type fakeProvider struct {
	srv      *httptest.Server
	calls    atomic.Int64
	probes   atomic.Int64
	status   int
	content  string
	header   string
	probeErr bool
	auths    chan string
}

func withQuotaHeader(v string) func(*fakeProvider) {
	return func(f *fakeProvider) { f.header = v }
}

func withFailingProbe() func(*fakeProvider) {
	return func(f *fakeProvider) { f.probeErr = true }
}

func newFakeProvider(t *testing.T, status int, content string, opts ...func(*fakeProvider)) *fakeProvider {
	t.Helper()
	f := &fakeProvider{status: status, content: content, auths: make(chan string, 8)}
	for _, opt := range opts {
		opt(f)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/key" {
			f.probes.Add(1)
			if f.probeErr {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"data":{"limit_remaining":7}}`))
			return
		}
		f.calls.Add(1)
		f.auths <- r.Header.Get("Authorization")
		if f.header != "" {
			w.Header().Set("x-ratelimit-remaining-requests", f.header)
		}
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + quoteJSON(f.content) + `}}]}`))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newDispatcher(t *testing.T, settings sl.Settings, qs sl.QuotaStore, groq, openrouter *fakeProvider) *sl.Dispatcher {
	t.Helper()
	providers := []sl.Provider{
		openaicompat.NewGroq(openaicompat.WithBaseURL(groq.srv.URL)),
		openaicompat.NewOpenRouter(openaicompat.WithBaseURL(openrouter.srv.URL)),
	}
	opts := []sl.Option{sl.WithSettings(sl.StaticSettings(settings))}
	if qs != nil {
		opts = append(opts, sl.WithQuotaStore(qs))
	}
	d, err := sl.NewDispatcher(providers, opts...)
	require.NoError(t, err)
	return d
}

func TestDispatch_MissingKeyFailsBeforeRequest(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, "x")
	openrouter := newFakeProvider(t, http.StatusOK, "x")
	d := newDispatcher(t, sl.Settings{}, nil, groq, openrouter)

	_, err := d.Dispatch(context.Background(), "hello", sl.ProviderConfig{})

	var ce *sl.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, sl.ProviderGroq, ce.Provider)
	assert.ErrorIs(t, err, sl.ErrMissingAPIKey)
	assert.Contains(t, err.Error(), "groq")
	assert.Zero(t, groq.calls.Load())
	assert.Zero(t, openrouter.calls.Load())
}

func TestDispatch_MissingKeyNamesSelectedProvider(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, "x")
	openrouter := newFakeProvider(t, http.StatusOK, "x")
	d := newDispatcher(t, sl.Settings{AIProvider: sl.ProviderOpenRouter, GroqAPIKey: "gsk"}, nil, groq, openrouter)

	_, err := d.Dispatch(context.Background(), "hello", sl.ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter")
	assert.True(t, sl.IsConfiguration(err))
	assert.Zero(t, groq.calls.Load()+openrouter.calls.Load())
}

func TestDispatch_TrimsContent(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, " Hello ")
	openrouter := newFakeProvider(t, http.StatusOK, "x")
	d := newDispatcher(t, sl.Settings{GroqAPIKey: "gsk-stored"}, nil, groq, openrouter)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
	assert.Equal(t, "Bearer gsk-stored", <-groq.auths)
}

func TestDispatch_ExplicitOverridesStored(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, "g")
	openrouter := newFakeProvider(t, http.StatusOK, "o")
	d := newDispatcher(t, sl.Settings{AIProvider: sl.ProviderGroq, GroqAPIKey: "gsk", OpenRouterAPIKey: "or-stored"}, nil, groq, openrouter)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: sl.ProviderOpenRouter, APIKey: "or-explicit"})
	require.NoError(t, err)
	assert.Equal(t, "o", got)
	assert.Equal(t, "Bearer or-explicit", <-openrouter.auths)
	assert.Zero(t, groq.calls.Load())
}

func TestDispatch_429FallsBackToSecondary(t *testing.T) {
	groq := newFakeProvider(t, http.StatusTooManyRequests, "")
	openrouter := newFakeProvider(t, http.StatusOK, "from openrouter")
	d := newDispatcher(t, sl.Settings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}, nil, groq, openrouter)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "from openrouter", got)
	assert.Equal(t, int64(1), groq.calls.Load())
	assert.Equal(t, int64(1), openrouter.calls.Load())
	assert.Equal(t, "Bearer or", <-openrouter.auths)
	d.Wait()
}

func TestDispatch_429WithoutSecondaryKey(t *testing.T) {
	groq := newFakeProvider(t, http.StatusTooManyRequests, "")
	openrouter := newFakeProvider(t, http.StatusOK, "x")
	d := newDispatcher(t, sl.Settings{GroqAPIKey: "gsk"}, nil, groq, openrouter)

	_, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})

	var pe *sl.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Equal(t, sl.ProviderGroq, pe.Provider)
	assert.Equal(t, int64(1), groq.calls.Load())
	assert.Zero(t, openrouter.calls.Load())
}

func TestDispatch_500NoFallback(t *testing.T) {
	groq := newFakeProvider(t, http.StatusInternalServerError, "")
	openrouter := newFakeProvider(t, http.StatusOK, "x")
	d := newDispatcher(t, sl.Settings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}, nil, groq, openrouter)

	_, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})

	var pe *sl.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInternalServerError, pe.Status)
	assert.Equal(t, int64(1), groq.calls.Load())
	assert.Zero(t, openrouter.calls.Load())
}

func TestDispatch_SecondaryFailureReturnsPrimaryError(t *testing.T) {
	groq := newFakeProvider(t, http.StatusTooManyRequests, "")
	openrouter := newFakeProvider(t, http.StatusServiceUnavailable, "")
	d := newDispatcher(t, sl.Settings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}, nil, groq, openrouter)

	_, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})

	var pe *sl.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, sl.ProviderGroq, pe.Provider)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Equal(t, int64(1), openrouter.calls.Load())
}

func TestDispatch_QuotaFromHeader(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, "ok", withQuotaHeader("14399"))
	openrouter := newFakeProvider(t, http.StatusOK, "x")
	qs := quota.NewMemoryQuotaStore()
	d := newDispatcher(t, sl.Settings{GroqAPIKey: "gsk"}, qs, groq, openrouter)

	_, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)

	d.Wait()
	sample, ok, err := qs.Remaining(context.Background(), sl.ProviderGroq)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "14399", sample.Remaining)
	assert.False(t, sample.ObservedAt.IsZero())
}

func TestDispatch_QuotaProbeWhenHeaderMissing(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, "x")
	openrouter := newFakeProvider(t, http.StatusOK, "ok")
	qs := quota.NewMemoryQuotaStore()
	d := newDispatcher(t, sl.Settings{AIProvider: sl.ProviderOpenRouter, OpenRouterAPIKey: "or"}, qs, groq, openrouter)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	d.Wait()
	assert.Equal(t, int64(1), openrouter.probes.Load())
	sample, ok, err := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", sample.Remaining)
}

func TestDispatch_QuotaProbeFailureDoesNotAffectResult(t *testing.T) {
	groq := newFakeProvider(t, http.StatusOK, "x")
	openrouter := newFakeProvider(t, http.StatusOK, " fine ", withFailingProbe())
	qs := quota.NewMemoryQuotaStore()
	d := newDispatcher(t, sl.Settings{AIProvider: sl.ProviderOpenRouter, OpenRouterAPIKey: "or"}, qs, groq, openrouter)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fine", got)

	d.Wait()
	assert.Equal(t, int64(1), openrouter.probes.Load())
	_, ok, err := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- mock-provider tests ---

type recordingMeter struct {
	mu       sync.Mutex
	attempts []sl.AttemptEvent
	results  []sl.ResultEvent
	quotas   []sl.QuotaEvent
}

func (m *recordingMeter) OnAttempt(e sl.AttemptEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, e)
}

func (m *recordingMeter) OnResult(e sl.ResultEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, e)
}

func (m *recordingMeter) OnQuota(e sl.QuotaEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas = append(m.quotas, e)
}

func TestDispatch_MeterEvents(t *testing.T) {
	groq := mock.New(mock.WithName(sl.ProviderGroq), mock.WithStatus(http.StatusTooManyRequests))
	openrouter := mock.New(mock.WithName(sl.ProviderOpenRouter), mock.WithRemaining("3"))
	m := &recordingMeter{}

	d, err := sl.NewDispatcher([]sl.Provider{groq, openrouter},
		sl.WithSettings(sl.StaticSettings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or", OpenRouterModel: "openai/gpt-4o-mini"}),
		sl.WithMeter(m),
	)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)

	require.Len(t, m.attempts, 2)
	assert.Equal(t, sl.ProviderGroq, m.attempts[0].Provider)
	assert.Equal(t, sl.DefaultGroqModel, m.attempts[0].Model)
	assert.False(t, m.attempts[0].Fallback)
	assert.Equal(t, sl.ProviderOpenRouter, m.attempts[1].Provider)
	assert.Equal(t, "openai/gpt-4o-mini", m.attempts[1].Model)
	assert.True(t, m.attempts[1].Fallback)
	assert.Equal(t, m.attempts[0].DispatchID, m.attempts[1].DispatchID)

	require.Len(t, m.results, 2)
	assert.False(t, m.results[0].Success)
	assert.Equal(t, http.StatusTooManyRequests, m.results[0].Status)
	assert.True(t, m.results[1].Success)

	d.Wait()
	require.Len(t, m.quotas, 1)
	assert.Equal(t, sl.ProviderOpenRouter, m.quotas[0].Provider)
	assert.Equal(t, sl.QuotaFromHeader, m.quotas[0].Source)
}

func TestDispatch_SendsSingleUserMessage(t *testing.T) {
	p := mock.New()
	d, err := sl.NewDispatcher([]sl.Provider{p})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "the prompt", sl.ProviderConfig{APIKey: "k", Model: "m"})
	require.NoError(t, err)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "k", reqs[0].Auth.APIKey)
	assert.Equal(t, "m", reqs[0].Model)
	assert.Equal(t, []sl.Message{{Role: "user", Content: "the prompt"}}, reqs[0].Messages)
}

type failingSettings struct{ calls atomic.Int64 }

func (f *failingSettings) Settings(context.Context) (sl.Settings, error) {
	f.calls.Add(1)
	return sl.Settings{}, errors.New("storage unavailable")
}

func TestDispatch_CompleteExplicitSkipsSettings(t *testing.T) {
	fs := &failingSettings{}
	d, err := sl.NewDispatcher([]sl.Provider{mock.New()}, sl.WithSettings(fs))
	require.NoError(t, err)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: sl.ProviderGroq, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "Hello from mock provider", got)
	assert.Zero(t, fs.calls.Load())
}

func TestDispatch_SettingsError(t *testing.T) {
	d, err := sl.NewDispatcher([]sl.Provider{mock.New()}, sl.WithSettings(&failingSettings{}))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read settings")
}

func TestDispatch_429SettingsErrorKeepsPrimaryError(t *testing.T) {
	groq := mock.New(mock.WithStatus(http.StatusTooManyRequests))
	fs := &failingSettings{}
	d, err := sl.NewDispatcher([]sl.Provider{groq, mock.New(mock.WithName(sl.ProviderOpenRouter))}, sl.WithSettings(fs))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: sl.ProviderGroq, APIKey: "k", Model: "m"})
	assert.True(t, sl.IsRateLimited(err))
	assert.Equal(t, int64(1), fs.calls.Load())
}

func TestDispatch_NetworkErrorNoFallback(t *testing.T) {
	netErr := &sl.NetworkError{Provider: sl.ProviderGroq, Err: errors.New("connection refused")}
	groq := mock.New(mock.WithError(netErr))
	openrouter := mock.New(mock.WithName(sl.ProviderOpenRouter))
	d, err := sl.NewDispatcher([]sl.Provider{groq, openrouter},
		sl.WithSettings(sl.StaticSettings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	assert.ErrorIs(t, err, netErr)
	assert.Zero(t, openrouter.CallCount())
}

func TestDispatch_FallbackProviderNotRegistered(t *testing.T) {
	groq := mock.New(mock.WithStatus(http.StatusTooManyRequests))
	d, err := sl.NewDispatcher([]sl.Provider{groq},
		sl.WithSettings(sl.StaticSettings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	assert.True(t, sl.IsRateLimited(err))
	assert.Equal(t, int64(1), groq.CallCount())
}

func TestDispatch_PrimaryNotRegistered(t *testing.T) {
	d, err := sl.NewDispatcher([]sl.Provider{mock.New()})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: sl.ProviderOpenRouter, APIKey: "k"})
	assert.ErrorIs(t, err, sl.ErrProviderNotRegistered)
}

func TestDispatch_UnknownProvider(t *testing.T) {
	d, err := sl.NewDispatcher([]sl.Provider{mock.New()})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: "claude", APIKey: "k"})
	assert.ErrorIs(t, err, sl.ErrUnknownProvider)
}

func TestDispatch_ProbeRunsWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	p := mock.New(mock.WithName(sl.ProviderOpenRouter), mock.WithProbe(func(sl.Auth) (string, error) {
		<-release
		return "$0.5000", nil
	}))
	qs := quota.NewMemoryQuotaStore()
	d, err := sl.NewDispatcher([]sl.Provider{p}, sl.WithQuotaStore(qs))
	require.NoError(t, err)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: sl.ProviderOpenRouter, APIKey: "or"})
	require.NoError(t, err)
	assert.Equal(t, "Hello from mock provider", got)

	// Dispatch returned while the probe is still blocked.
	_, ok, _ := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	assert.False(t, ok)

	close(release)
	d.Wait()
	assert.Equal(t, int64(1), p.ProbeCount())
	sample, ok, _ := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	require.True(t, ok)
	assert.Equal(t, "$0.5000", sample.Remaining)
}

func TestDispatch_ProbeOutlivesCanceledContext(t *testing.T) {
	p := mock.New(mock.WithName(sl.ProviderOpenRouter), mock.WithProbe(func(sl.Auth) (string, error) {
		return "9", nil
	}))
	qs := quota.NewMemoryQuotaStore()
	d, err := sl.NewDispatcher([]sl.Provider{p}, sl.WithQuotaStore(qs))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = d.Dispatch(ctx, "hi", sl.ProviderConfig{Provider: sl.ProviderOpenRouter, APIKey: "or"})
	require.NoError(t, err)
	cancel()

	d.Wait()
	sample, ok, _ := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	require.True(t, ok)
	assert.Equal(t, "9", sample.Remaining)
}

func TestDispatch_Concurrent(t *testing.T) {
	p := mock.New(mock.WithRemaining("1"))
	qs := quota.NewMemoryQuotaStore()
	d, err := sl.NewDispatcher([]sl.Provider{p}, sl.WithQuotaStore(qs),
		sl.WithSettings(sl.StaticSettings{GroqAPIKey: "gsk"}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(20), p.CallCount())
}

func TestNewDispatcher_Validation(t *testing.T) {
	_, err := sl.NewDispatcher(nil)
	assert.Error(t, err)

	_, err = sl.NewDispatcher([]sl.Provider{mock.New(mock.WithName("claude"))})
	assert.ErrorIs(t, err, sl.ErrUnknownProvider)
}

func TestComplete(t *testing.T) {
	d, err := sl.NewDispatcher([]sl.Provider{mock.New(mock.WithContent("\n done \n"))})
	require.NoError(t, err)

	got, err := d.Complete(context.Background(), sl.CompletionRequest{
		Prompt: "p",
		Config: sl.ProviderConfig{APIKey: "k"},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

// blockingStore holds every Record until release is closed.
type blockingStore struct {
	release chan struct{}
	inner   *quota.MemoryQuotaStore
}

func (s *blockingStore) Record(ctx context.Context, sample sl.QuotaSample) error {
	<-s.release
	return s.inner.Record(ctx, sample)
}

func (s *blockingStore) Remaining(ctx context.Context, p sl.ProviderName) (sl.QuotaSample, bool, error) {
	return s.inner.Remaining(ctx, p)
}

func TestDispatch_HeaderQuotaDoesNotBlock(t *testing.T) {
	qs := &blockingStore{release: make(chan struct{}), inner: quota.NewMemoryQuotaStore()}
	d, err := sl.NewDispatcher([]sl.Provider{mock.New(mock.WithRemaining("5"))},
		sl.WithQuotaStore(qs),
		sl.WithMeter(&meter.NoopMeter{}),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{APIKey: "k"})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(qs.release)
		t.Fatal("Dispatch waited on the quota store")
	}

	_, ok, _ := qs.Remaining(context.Background(), sl.ProviderGroq)
	assert.False(t, ok)

	close(qs.release)
	d.Wait()
	sample, ok, _ := qs.Remaining(context.Background(), sl.ProviderGroq)
	require.True(t, ok)
	assert.Equal(t, "5", sample.Remaining)
}

func TestDispatch_HeaderSkipsProbe(t *testing.T) {
	p := mock.New(mock.WithName(sl.ProviderOpenRouter), mock.WithRemaining("12"),
		mock.WithProbe(func(sl.Auth) (string, error) { return "99", nil }))
	qs := quota.NewMemoryQuotaStore()
	d, err := sl.NewDispatcher([]sl.Provider{p}, sl.WithQuotaStore(qs))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Provider: sl.ProviderOpenRouter, APIKey: "or"})
	require.NoError(t, err)

	d.Wait()
	assert.Zero(t, p.ProbeCount())
	sample, ok, _ := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	require.True(t, ok)
	assert.Equal(t, "12", sample.Remaining)
}

func TestDispatch_FallbackRecordsQuotaForServingProvider(t *testing.T) {
	groq := mock.New(mock.WithStatus(http.StatusTooManyRequests))
	openrouter := mock.New(mock.WithName(sl.ProviderOpenRouter), mock.WithRemaining("3"))
	qs := quota.NewMemoryQuotaStore()
	d, err := sl.NewDispatcher([]sl.Provider{groq, openrouter},
		sl.WithSettings(sl.StaticSettings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}),
		sl.WithQuotaStore(qs),
	)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "hi", sl.ProviderConfig{})
	require.NoError(t, err)
	d.Wait()

	sample, ok, err := qs.Remaining(context.Background(), sl.ProviderOpenRouter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", sample.Remaining)

	_, ok, err = qs.Remaining(context.Background(), sl.ProviderGroq)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatch_ExplicitModelWithStoredProviderAndKey(t *testing.T) {
	echo := func(req sl.ProviderRequest) (sl.ProviderResponse, error) {
		return sl.ProviderResponse{Content: req.Model + "|" + req.Auth.APIKey}, nil
	}
	openrouter := mock.New(mock.WithName(sl.ProviderOpenRouter), mock.WithResponseFunc(echo))
	d, err := sl.NewDispatcher([]sl.Provider{mock.New(), openrouter},
		sl.WithSettings(sl.StaticSettings{
			AIProvider:       sl.ProviderOpenRouter,
			OpenRouterAPIKey: "or-stored",
			OpenRouterModel:  "stored-model",
		}),
	)
	require.NoError(t, err)

	got, err := d.Dispatch(context.Background(), "hi", sl.ProviderConfig{Model: "explicit-model"})
	require.NoError(t, err)
	assert.Equal(t, "explicit-model|or-stored", got)
	assert.Equal(t, int64(1), openrouter.CallCount())
}

func TestDispatch_ContextDeadlineNoFallback(t *testing.T) {
	groq := mock.New(mock.WithLatency(time.Second))
	openrouter := mock.New(mock.WithName(sl.ProviderOpenRouter))
	d, err := sl.NewDispatcher([]sl.Provider{groq, openrouter},
		sl.WithSettings(sl.StaticSettings{GroqAPIKey: "gsk", OpenRouterAPIKey: "or"}),
		sl.WithMeter(&meter.NoopMeter{}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = d.Dispatch(ctx, "hi", sl.ProviderConfig{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, groq.CallCount())
	assert.Zero(t, openrouter.CallCount())
}
