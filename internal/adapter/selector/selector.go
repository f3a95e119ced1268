// Package selector implements ports.ModelSelector: scoring candidate
// (provider,model) alternatives against live ModelPool state and deciding,
// from the best candidate's absolute score, whether to race the top few
// concurrently.
package selector

import (
	"context"
	"sort"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
)

// Selector scores every candidate against the ModelPool's live slot
// status using four weighted components (capacity, health, performance,
// priority), then gates racing on an absolute score threshold rather
// than a relative delta between the top candidates.
type Selector struct {
	cfg  config.ModelSelectorConfig
	pool ports.ModelPool
}

func New(cfg config.ModelSelectorConfig, pool ports.ModelPool) *Selector {
	return &Selector{cfg: cfg, pool: pool}
}

// Candidates scores and ranks alternatives best-first. The first element
// of the incoming slice, in whatever order the caller supplies it (
// buildCandidates does not sort by provider priority), is treated as the
// primary candidate, contributing the primary share of the priority score;
// every other candidate is a secondary.
func (s *Selector) Candidates(ctx context.Context, req *domain.RequestContext, alternatives []domain.Alternative) []domain.Alternative {
	status := make(map[string]ports.ModelSlotStatus, len(alternatives))
	for _, st := range s.pool.Status() {
		status[st.ProviderID+"::"+st.Model] = st
	}

	scored := make([]domain.Alternative, len(alternatives))
	copy(scored, alternatives)
	healthOf := make(map[int]float64, len(scored))
	for i := range scored {
		candidatePriority := 0.0
		if i == 0 {
			candidatePriority = 10
		}
		st, ok := status[scored[i].ProviderID+"::"+scored[i].Model]
		if !ok || st.CircuitOpen || st.RateLimited || (st.MaxConcurrent > 0 && st.InFlight+st.Reserved >= st.MaxConcurrent) {
			scored[i].Score = 0
			continue
		}
		score, health := s.score(st, candidatePriority, float64(req.Priority))
		scored[i].Score = score
		healthOf[i] = health
	}

	// Sort indices rather than scored itself so healthOf, keyed by the
	// original index, stays aligned with each candidate.
	order := make([]int, len(scored))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		// PreferHealthyModels breaks exact ties on the healthier slot
		// instead of leaving tied candidates in registry order.
		if s.cfg.PreferHealthyModels {
			return healthOf[i] > healthOf[j]
		}
		return false
	})
	ranked := make([]domain.Alternative, len(order))
	for k, i := range order {
		ranked[k] = scored[i]
	}
	return ranked
}

// score computes spec's weighted candidate score and also returns the
// raw healthScore component, used only to break exact-score ties.
func (s *Selector) score(st ports.ModelSlotStatus, candidatePriority, requestPriority float64) (score, healthScore float64) {
	capacityScore := 100.0
	if st.MaxConcurrent > 0 {
		capacityScore = float64(st.MaxConcurrent-st.InFlight-st.Reserved) / float64(st.MaxConcurrent) * 100
		if capacityScore < 0 {
			capacityScore = 0
		}
	}

	healthScore = 100.0
	if s.cfg.EnableHealthBasedRouting {
		total := st.SuccessCount + st.FailureCount
		if total > 0 {
			healthScore = float64(st.SuccessCount) / float64(total) * 100
		}
	}

	performanceScore := 100.0
	if s.cfg.EnablePerformanceBasedRouting {
		performanceScore = 100 - 10*float64(st.FailureCount)
		if performanceScore < 0 {
			performanceScore = 0
		}
	}

	priorityScore := candidatePriority + requestPriority

	w := s.cfg.ScoreWeights
	score = w.Capacity*capacityScore + w.Health*healthScore + w.Performance*performanceScore + w.Priority*priorityScore
	return score, healthScore
}

// ShouldRace applies spec's fixed absolute-threshold racing rule: proactive
// racing must be on, the scenario must be default (background/think/
// longContext/webSearch never race), and there must be at least one other
// admissible candidate. Below that, the best score decides: under 50 always
// races, 50-70 races only because an alternative exists, 70 and above never
// races. The race set is the best candidate plus the next
// MaxParallelAlternatives runners-up.
func (s *Selector) ShouldRace(scenarioName string, candidates []domain.Alternative) (int, bool) {
	if !s.cfg.EnableProactiveFailover || scenarioName != constants.ScenarioDefault {
		return 1, false
	}
	admissible := 0
	for _, c := range candidates {
		if c.Score > 0 {
			admissible++
		}
	}
	if admissible < 2 {
		return 1, false
	}
	best := candidates[0].Score
	if best >= 70 {
		return 1, false
	}

	raceCount := 1 + s.cfg.MaxParallelAlternatives
	if raceCount > admissible {
		raceCount = admissible
	}
	if raceCount > len(candidates) {
		raceCount = len(candidates)
	}
	return raceCount, raceCount > 1
}
