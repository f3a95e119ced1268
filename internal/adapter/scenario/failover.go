package scenario

import (
	"net/http"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/domain"
)

// failoverEligibleStatus is the set of upstream statuses that warrant
// trying an alternative provider for a custom-model request, matching
// the rate-limit/overload/gateway error family.
var failoverEligibleStatus = map[int]bool{
	429: true,
	439: true,
	449: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
}

// Planner decides whether a failed custom-model dispatch should retry
// against a different (provider,model) pair, and builds the ordered
// alternative set to try.
type Planner struct {
	cfg config.FailoverConfig
}

func NewPlanner(cfg config.FailoverConfig) *Planner {
	return &Planner{cfg: cfg}
}

// ShouldFailover reports whether err warrants trying an alternative.
// Failover only ever applies to custom-model requests — a pinned
// (provider,model) request fails outright on error.
func (p *Planner) ShouldFailover(isCustomModel bool, err *domain.ProviderError) bool {
	if !isCustomModel || err == nil {
		return false
	}
	if failoverEligibleStatus[err.StatusCode] {
		return true
	}
	return err.Kind == domain.ErrorKindOverloaded
}

// Plan caps the alternative list at MaxAttempts, keeping the caller's
// order; it does not filter or rank the alternatives itself.
func (p *Planner) Plan(alternatives []domain.Alternative) []domain.Alternative {
	max := p.cfg.MaxAttempts
	if max <= 0 || max > len(alternatives) {
		max = len(alternatives)
	}
	return alternatives[:max]
}
