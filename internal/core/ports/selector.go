package ports

import (
	"context"

	"github.com/olla-run/olla/internal/core/domain"
)

// ModelSelector scores the candidate (provider,model) alternatives for a
// request and decides whether to race the top N candidates concurrently
// or dispatch to a single best candidate.
type ModelSelector interface {
	// Candidates returns alternatives ordered best-first.
	Candidates(ctx context.Context, req *domain.RequestContext, alternatives []domain.Alternative) []domain.Alternative

	// ShouldRace reports whether the top candidates should be raced
	// concurrently instead of attempted strictly best-first. Racing is
	// scenario-gated: only the default scenario races, per spec's
	// latency-sensitivity split between interactive and background work.
	ShouldRace(scenarioName string, candidates []domain.Alternative) (raceCount int, race bool)
}
