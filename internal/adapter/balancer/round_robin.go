package balancer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/olla-run/olla/internal/core/domain"
)

// RoundRobinSelector cycles through the routable endpoint slots handed
// to it, ignoring load entirely; callers are expected to have already
// filtered to slots with capacity and a closed breaker.
type RoundRobinSelector struct {
	counter atomic.Uint64
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (r *RoundRobinSelector) Name() string {
	return DefaultBalancerRoundRobin
}

func (r *RoundRobinSelector) Select(ctx context.Context, slots []*domain.EndpointSlot) (*domain.EndpointSlot, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("no endpoint slots available")
	}
	current := r.counter.Add(1) - 1
	index := current % uint64(len(slots))
	return slots[index], nil
}
