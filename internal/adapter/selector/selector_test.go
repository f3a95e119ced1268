package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
)

type fakePool struct {
	status []ports.ModelSlotStatus
}

func (p *fakePool) HasCapacity(providerID, model string) bool { return true }
func (p *fakePool) ReserveSlot(providerID, model string) bool { return true }
func (p *fakePool) ConfirmSlot(providerID, model string)      {}
func (p *fakePool) ReleaseReservation(providerID, model string) {}
func (p *fakePool) ReleaseSlot(providerID, model string, success bool) {}
func (p *fakePool) MarkRateLimit(providerID, model string, retryAfter time.Duration) time.Duration {
	return 0
}
func (p *fakePool) IsAvailable(providerID, model string) bool { return true }
func (p *fakePool) Enqueue(ctx context.Context, providerID, model string, priority int) error {
	return nil
}
func (p *fakePool) GetAvailableAlternatives(providerID, model string) []domain.Alternative {
	return nil
}
func (p *fakePool) Status() []ports.ModelSlotStatus { return p.status }
func (p *fakePool) ResetCircuitBreakers()           {}
func (p *fakePool) ClearQueues() int                { return 0 }

func fullHealth(providerID, model string, inFlight, max int64) ports.ModelSlotStatus {
	return ports.ModelSlotStatus{ProviderID: providerID, Model: model, InFlight: inFlight, MaxConcurrent: max}
}

func defaultCfg() config.ModelSelectorConfig {
	return config.ModelSelectorConfig{
		EnableProactiveFailover:      true,
		EnableHealthBasedRouting:     true,
		EnablePerformanceBasedRouting: true,
		PreferHealthyModels:          true,
		MaxParallelAlternatives:      2,
		ScoreWeights: config.ScoreWeightsConfig{
			Capacity:    0.4,
			Health:      0.3,
			Performance: 0.2,
			Priority:    0.1,
		},
	}
}

func TestCandidatesScoresByLiveCapacity(t *testing.T) {
	pool := &fakePool{status: []ports.ModelSlotStatus{
		fullHealth("p1", "m", 8, 10), // mostly loaded
		fullHealth("p2", "m", 0, 10), // idle
	}}
	s := New(defaultCfg(), pool)
	alts := []domain.Alternative{{ProviderID: "p1", Model: "m"}, {ProviderID: "p2", Model: "m"}}

	ranked := s.Candidates(context.Background(), &domain.RequestContext{}, alts)

	assert.Equal(t, "p2", ranked[0].ProviderID)
	assert.Equal(t, "p1", ranked[1].ProviderID)
}

func TestCandidatesZeroesDisqualifiedSlots(t *testing.T) {
	pool := &fakePool{status: []ports.ModelSlotStatus{
		{ProviderID: "p1", Model: "m", MaxConcurrent: 10, RateLimited: true},
		fullHealth("p2", "m", 0, 10),
	}}
	s := New(defaultCfg(), pool)
	alts := []domain.Alternative{{ProviderID: "p1", Model: "m"}, {ProviderID: "p2", Model: "m"}}

	ranked := s.Candidates(context.Background(), &domain.RequestContext{}, alts)

	assert.Equal(t, "p2", ranked[0].ProviderID)
	assert.Equal(t, float64(0), ranked[1].Score)
}

func TestShouldRaceOnlyRacesDefaultScenario(t *testing.T) {
	pool := &fakePool{status: []ports.ModelSlotStatus{
		fullHealth("p1", "m", 9, 10),
		fullHealth("p2", "m", 9, 10),
	}}
	s := New(defaultCfg(), pool)
	alts := []domain.Alternative{{ProviderID: "p1", Model: "m"}, {ProviderID: "p2", Model: "m"}}
	ranked := s.Candidates(context.Background(), &domain.RequestContext{}, alts)

	_, race := s.ShouldRace("background", ranked)
	assert.False(t, race)

	count, race := s.ShouldRace("default", ranked)
	assert.True(t, race)
	assert.Equal(t, 2, count)
}

func TestShouldRaceNeverRacesAboveHighScoreThreshold(t *testing.T) {
	pool := &fakePool{status: []ports.ModelSlotStatus{
		fullHealth("p1", "m", 0, 10), // idle: scores near 100
		fullHealth("p2", "m", 0, 10),
	}}
	s := New(defaultCfg(), pool)
	alts := []domain.Alternative{{ProviderID: "p1", Model: "m"}, {ProviderID: "p2", Model: "m"}}
	ranked := s.Candidates(context.Background(), &domain.RequestContext{}, alts)

	_, race := s.ShouldRace("default", ranked)
	assert.False(t, race)
}

func TestShouldRaceRequiresAnAdmissibleAlternative(t *testing.T) {
	pool := &fakePool{status: []ports.ModelSlotStatus{
		fullHealth("p1", "m", 9, 10),
	}}
	s := New(defaultCfg(), pool)
	alts := []domain.Alternative{{ProviderID: "p1", Model: "m"}}
	ranked := s.Candidates(context.Background(), &domain.RequestContext{}, alts)

	_, race := s.ShouldRace("default", ranked)
	assert.False(t, race)
}
