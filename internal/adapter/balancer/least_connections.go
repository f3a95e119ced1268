package balancer

import (
	"context"
	"fmt"

	"github.com/olla-run/olla/internal/core/domain"
)

// LeastConnectionsSelector picks the routable slot with the fewest
// confirmed in-flight requests, reading straight off each slot's own
// atomic counters rather than tracking a parallel connection map.
type LeastConnectionsSelector struct{}

func NewLeastConnectionsSelector() *LeastConnectionsSelector {
	return &LeastConnectionsSelector{}
}

func (l *LeastConnectionsSelector) Name() string {
	return DefaultBalancerLeastConnections
}

func (l *LeastConnectionsSelector) Select(ctx context.Context, slots []*domain.EndpointSlot) (*domain.EndpointSlot, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("no endpoint slots available")
	}

	var selected *domain.EndpointSlot
	minConnections := int64(-1)

	for _, s := range slots {
		connections := s.InFlight()
		if minConnections == -1 || connections < minConnections {
			minConnections = connections
			selected = s
		}
	}

	return selected, nil
}
