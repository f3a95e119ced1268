package dispatcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olla-run/olla/internal/adapter/header"
	"github.com/olla-run/olla/internal/adapter/scenario"
	"github.com/olla-run/olla/internal/adapter/transform"
	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
)

// --- fakes -----------------------------------------------------------

type fakePool struct {
	mu           sync.Mutex
	released     []string
	alternatives []domain.Alternative
}

func newFakePool() *fakePool { return &fakePool{} }

func (p *fakePool) HasCapacity(providerID, model string) bool { return true }
func (p *fakePool) ReserveSlot(providerID, model string) bool { return true }
func (p *fakePool) ConfirmSlot(providerID, model string)      {}
func (p *fakePool) ReleaseReservation(providerID, model string) {}
func (p *fakePool) ReleaseSlot(providerID, model string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	outcome := "fail"
	if success {
		outcome = "ok"
	}
	p.released = append(p.released, providerID+"/"+model+":"+outcome)
}
func (p *fakePool) MarkRateLimit(providerID, model string, retryAfter time.Duration) time.Duration {
	return 0
}
func (p *fakePool) IsAvailable(providerID, model string) bool            { return true }
func (p *fakePool) Enqueue(ctx context.Context, providerID, model string, priority int) error {
	return nil
}
func (p *fakePool) GetAvailableAlternatives(providerID, model string) []domain.Alternative {
	return p.alternatives
}
func (p *fakePool) Status() []ports.ModelSlotStatus { return nil }
func (p *fakePool) ResetCircuitBreakers()            {}
func (p *fakePool) ClearQueues() int                 { return 0 }

// fakeEndpoints resolves a candidate's base URL from the registry it
// shares with the dispatcher under test, so multiple providers backed
// by different httptest servers can coexist in one test.
type fakeEndpoints struct {
	registry *fakeRegistry
}

func (e *fakeEndpoints) HasCapacity(providerID string) bool { return true }
func (e *fakeEndpoints) ReserveSlot(providerID string) bool { return true }
func (e *fakeEndpoints) ConfirmSlot(providerID string)      {}
func (e *fakeEndpoints) ReleaseReservation(providerID string) {}
func (e *fakeEndpoints) ReleaseSlot(providerID string, success bool) {}
func (e *fakeEndpoints) SelectEndpoint(ctx context.Context, providerID, preferred string) (*domain.EndpointSlot, error) {
	p, _ := e.registry.Get(providerID)
	return &domain.EndpointSlot{ProviderID: providerID, BaseURL: p.BaseURL}, nil
}
func (e *fakeEndpoints) Status() []ports.EndpointSlotStatus { return nil }
func (e *fakeEndpoints) ResetCircuitBreakers()               {}

type passthroughSelector struct {
	race      bool
	raceCount int
}

func (s *passthroughSelector) Candidates(ctx context.Context, req *domain.RequestContext, alternatives []domain.Alternative) []domain.Alternative {
	return alternatives
}
func (s *passthroughSelector) ShouldRace(scenarioName string, candidates []domain.Alternative) (int, bool) {
	if s.race {
		return s.raceCount, true
	}
	return 1, false
}

type fakeClassifier struct {
	kind domain.ErrorKind
}

func (c *fakeClassifier) ClassifyHTTP(providerID, family, model string, statusCode int, body []byte, headers http.Header) *domain.ProviderError {
	kind := c.kind
	if kind == "" {
		kind = domain.ErrorKindUpstream5xx
	}
	return &domain.ProviderError{ProviderID: providerID, Family: family, Model: model, StatusCode: statusCode, Kind: kind}
}
func (c *fakeClassifier) ClassifyTransport(providerID, family, model string, err error) *domain.ProviderError {
	return &domain.ProviderError{ProviderID: providerID, Family: family, Model: model, Kind: domain.ErrorKindConnection, Err: err}
}

type fakeRegistry struct {
	providers map[string]*domain.Provider
}

func newFakeRegistry(providers ...*domain.Provider) *fakeRegistry {
	m := map[string]*domain.Provider{}
	for _, p := range providers {
		m[p.ID] = p
	}
	return &fakeRegistry{providers: m}
}
func (r *fakeRegistry) Get(id string) (*domain.Provider, bool) { p, ok := r.providers[id]; return p, ok }
func (r *fakeRegistry) All() []*domain.Provider {
	out := make([]*domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
func (r *fakeRegistry) ProvidersForModel(model string) []*domain.Provider {
	var out []*domain.Provider
	for _, p := range r.providers {
		if p.SupportsModel(model) {
			out = append(out, p)
		}
	}
	return out
}
func (r *fakeRegistry) Add(ctx context.Context, p *domain.Provider) error    { return nil }
func (r *fakeRegistry) Remove(ctx context.Context, id string) error         { return nil }
func (r *fakeRegistry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return nil
}

type fakeMetrics struct {
	mu      sync.Mutex
	records []ports.RequestRecord
}

func (m *fakeMetrics) RecordRequest(rec ports.RequestRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}
func (m *fakeMetrics) Recent(limit int) []ports.RequestRecord { return nil }
func (m *fakeMetrics) Aggregate() ports.MetricsSnapshot        { return ports.MetricsSnapshot{} }

type noopStreams struct{}

func (noopStreams) Pump(ctx context.Context, w http.ResponseWriter, upstreamBody io.ReadCloser, opts ports.StreamOptions) ports.StreamResult {
	panic("streaming not exercised in this test")
}

// --- helpers -----------------------------------------------------------

func newProvider(id, baseURL string, models ...string) *domain.Provider {
	return domain.NewProvider(id, id, baseURL, constants.FamilyOpenAI, 1, 1, []string{"test-key"}, models)
}

func newDispatcher(t *testing.T, registry *fakeRegistry, pool *fakePool, endpoints *fakeEndpoints, selector ports.ModelSelector, classifier ports.ErrorClassifier) *Dispatcher {
	t.Helper()
	return New(Deps{
		Pool:         pool,
		Endpoints:    endpoints,
		Selector:     selector,
		Transformers: transform.New(),
		Classifier:   classifier,
		Streams:      noopStreams{},
		Registry:     registry,
		Headers:      header.NewBuilder(),
		Metrics:      &fakeMetrics{},
		Failover:     scenario.NewPlanner(config.FailoverConfig{MaxAttempts: 3}),
	})
}

func jsonRequest(body string, stream bool) *domain.RequestContext {
	return &domain.RequestContext{
		RequestID:      "req-1",
		StartTime:      time.Now(),
		IngressDialect: constants.FamilyOpenAI,
		RequestedModel: "gpt-4",
		Headers:        http.Header{},
		Body:           []byte(body),
		Stream:         stream,
	}
}

// --- tests -----------------------------------------------------------

func TestDispatchSinglePathSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"resp-1"}`))
	}))
	defer upstream.Close()

	provider := newProvider("p1", upstream.URL, "gpt-4")
	registry := newFakeRegistry(provider)
	pool := newFakePool()
	endpoints := &fakeEndpoints{registry: registry}
	d := newDispatcher(t, registry, pool, endpoints, &passthroughSelector{}, &fakeClassifier{})

	rc := jsonRequest(`{"model":"gpt-4"}`, false)
	rec := httptest.NewRecorder()

	decision, err := d.Dispatch(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDispatched, decision.Action)
	assert.Equal(t, "p1", decision.ProviderID)
	assert.Contains(t, rec.Body.String(), "resp-1")
	assert.Contains(t, pool.released, "p1/gpt-4:ok")
}

func TestDispatchPinnedModelFailureReturnsProviderError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer upstream.Close()

	provider := newProvider("p1", upstream.URL, "gpt-4")
	registry := newFakeRegistry(provider)
	pool := newFakePool()
	endpoints := &fakeEndpoints{registry: registry}
	d := newDispatcher(t, registry, pool, endpoints, &passthroughSelector{}, &fakeClassifier{kind: domain.ErrorKindUpstream5xx})

	rc := jsonRequest(`{"model":"gpt-4"}`, false)
	rec := httptest.NewRecorder()

	decision, err := d.Dispatch(context.Background(), rec, rc)
	require.Error(t, err)
	assert.Nil(t, decision)
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ErrorKindUpstream5xx, perr.Kind)
	assert.Contains(t, pool.released, "p1/gpt-4:fail")
}

func TestDispatchCustomModelFailsOverOnRateLimit(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"resp-2"}`))
	}))
	defer healthy.Close()

	bad := newProvider("bad", failing.URL, "llama3")
	good := newProvider("good", healthy.URL, "llama3")
	registry := newFakeRegistry(bad, good)

	pool := newFakePool()
	pool.alternatives = []domain.Alternative{
		{ProviderID: "bad", Model: "llama3", Score: 1},
		{ProviderID: "good", Model: "llama3", Score: 1},
	}

	endpoints := &fakeEndpoints{registry: registry}
	classifier := &fakeClassifier{kind: domain.ErrorKindRateLimit}
	d := newDispatcher(t, registry, pool, endpoints, &passthroughSelector{}, classifier)

	rc := jsonRequest(`{"model":"custom-model"}`, false)
	rc.RequestedModel = constants.CustomModelID
	rec := httptest.NewRecorder()

	decision, err := d.Dispatch(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFailedOver, decision.Action)
	assert.Equal(t, "good", decision.ProviderID)
	assert.Contains(t, rec.Body.String(), "resp-2")
}

func TestDispatchRacePicksFastestCandidateAndSparesLoserTheBlame(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"slow"}`))
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"fast"}`))
	}))
	defer fast.Close()

	slowP := newProvider("slow", slow.URL, "gpt-4")
	fastP := newProvider("fast", fast.URL, "gpt-4")
	registry := newFakeRegistry(slowP, fastP)

	pool := newFakePool()
	endpoints := &fakeEndpoints{registry: registry}
	selector := &passthroughSelector{race: true, raceCount: 2}
	d := newDispatcher(t, registry, pool, endpoints, selector, &fakeClassifier{})

	rc := jsonRequest(`{"model":"gpt-4"}`, false)
	rec := httptest.NewRecorder()

	decision, err := d.Dispatch(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, decision.Raced)
	assert.Equal(t, "fast", decision.ProviderID)
	assert.Contains(t, rec.Body.String(), "fast")

	pool.mu.Lock()
	defer pool.mu.Unlock()
	require.Len(t, pool.released, 2)
	for _, r := range pool.released {
		assert.Contains(t, r, ":ok")
	}
}
