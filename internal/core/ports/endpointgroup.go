package ports

import (
	"context"

	"github.com/olla-run/olla/internal/core/domain"
)

// EndpointGroupManager tracks capacity/health per provider base URL
// (independent of which model is being served), and selects among the
// routable endpoints within a provider using a pluggable strategy.
type EndpointGroupManager interface {
	HasCapacity(providerID string) bool
	ReserveSlot(providerID string) bool
	ConfirmSlot(providerID string)
	ReleaseReservation(providerID string)
	ReleaseSlot(providerID string, success bool)

	SelectEndpoint(ctx context.Context, providerID string, preferred string) (*domain.EndpointSlot, error)

	Status() []EndpointSlotStatus
	ResetCircuitBreakers()
}

type EndpointSlotStatus struct {
	ProviderID   string
	BaseURL      string
	InFlight     int64
	BreakerState int32
}

// SelectorStrategy picks one endpoint slot from a routable set;
// balancer.Factory builds one by name (priority, round-robin,
// least-connections). There is no random strategy.
type SelectorStrategy interface {
	Name() string
	Select(ctx context.Context, slots []*domain.EndpointSlot) (*domain.EndpointSlot, error)
}
