package balancer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/olla-run/olla/internal/core/domain"
)

// PrioritySelector picks the highest-priority tier among routable slots,
// then weighted-randomly selects within that tier using each slot's
// configured Weight.
type PrioritySelector struct{}

func NewPrioritySelector() *PrioritySelector {
	return &PrioritySelector{}
}

func (p *PrioritySelector) Name() string {
	return DefaultBalancerPriority
}

func (p *PrioritySelector) Select(ctx context.Context, slots []*domain.EndpointSlot) (*domain.EndpointSlot, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("no endpoint slots available")
	}

	ranked := make([]*domain.EndpointSlot, len(slots))
	copy(ranked, slots)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	highest := ranked[0].Priority
	var tier []*domain.EndpointSlot
	for _, s := range ranked {
		if s.Priority != highest {
			break
		}
		tier = append(tier, s)
	}

	if len(tier) == 1 {
		return tier[0], nil
	}
	return p.weightedSelect(tier), nil
}

func (p *PrioritySelector) weightedSelect(slots []*domain.EndpointSlot) *domain.EndpointSlot {
	if len(slots) == 1 {
		return slots[0]
	}

	totalWeight := 0.0
	for _, s := range slots {
		totalWeight += s.Weight
	}

	if totalWeight == 0 {
		return slots[rand.Intn(len(slots))]
	}

	r := rand.Float64() * totalWeight
	weightSum := 0.0

	for _, s := range slots {
		weightSum += s.Weight
		if r <= weightSum {
			return s
		}
	}

	return slots[len(slots)-1]
}
