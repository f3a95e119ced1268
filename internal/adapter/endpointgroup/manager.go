// Package endpointgroup implements ports.EndpointGroupManager: per
// provider-base-URL capacity and circuit-breaker accounting, selecting
// among the backends fronting a single provider via a pluggable
// ports.SelectorStrategy.
package endpointgroup

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
	"github.com/olla-run/olla/internal/logger"
)

type Manager struct {
	slots *xsync.Map[string, *domain.EndpointSlot]

	cfg      config.EndpointRateLimitingConfig
	strategy ports.SelectorStrategy
	logger   *logger.StyledLogger
}

func New(cfg config.EndpointRateLimitingConfig, strategy ports.SelectorStrategy, log *logger.StyledLogger) *Manager {
	return &Manager{
		slots:    xsync.NewMap[string, *domain.EndpointSlot](),
		cfg:      cfg,
		strategy: strategy,
		logger:   log,
	}
}

func key(providerID, baseURL string) string {
	return providerID + "::" + baseURL
}

func (m *Manager) slot(providerID, baseURL string) *domain.EndpointSlot {
	s, _ := m.slots.LoadOrCompute(key(providerID, baseURL), func() (*domain.EndpointSlot, bool) {
		return domain.NewEndpointSlot(providerID, baseURL, m.cfg.DefaultMaxConcurrent), false
	})
	return s
}

// Register ensures a slot exists for a provider's base URL, called once
// per provider at registry load time so Status()/SelectEndpoint have
// something to report before the first request arrives.
func (m *Manager) Register(providerID, baseURL string) {
	m.slot(providerID, baseURL)
}

func (m *Manager) HasCapacity(providerID string) bool {
	for _, s := range m.slotsForProvider(providerID) {
		if s.HasCapacity() && !s.IsCircuitOpen(time.Now()) {
			return true
		}
	}
	return false
}

func (m *Manager) ReserveSlot(providerID string) bool {
	slot, err := m.SelectEndpoint(context.Background(), providerID, "")
	if err != nil {
		return false
	}
	return slot.Reserve()
}

func (m *Manager) ConfirmSlot(providerID string) {
	for _, s := range m.slotsForProvider(providerID) {
		if s.Occupied() > s.InFlight() {
			s.Confirm()
			return
		}
	}
}

func (m *Manager) ReleaseReservation(providerID string) {
	for _, s := range m.slotsForProvider(providerID) {
		if s.Occupied() > s.InFlight() {
			s.ReleaseReservation()
			return
		}
	}
}

func (m *Manager) ReleaseSlot(providerID string, success bool) {
	for _, s := range m.slotsForProvider(providerID) {
		if s.InFlight() > 0 {
			s.Release()
			if success {
				s.RecordSuccess()
			} else {
				prevState := s.BreakerState()
				s.RecordFailure(time.Now())
				if s.BreakerState() == domain.BreakerOpen && prevState != domain.BreakerOpen {
					m.logger.InfoBreakerState("circuit breaker tripped for endpoint", fmt.Sprintf("%s/%s", s.ProviderID, s.BaseURL), s.BreakerState())
				}
			}
			return
		}
	}
}

func (m *Manager) slotsForProvider(providerID string) []*domain.EndpointSlot {
	var out []*domain.EndpointSlot
	m.slots.Range(func(k string, s *domain.EndpointSlot) bool {
		if s.ProviderID == providerID {
			out = append(out, s)
		}
		return true
	})
	return out
}

// SelectEndpoint picks a routable backend for providerID. If preferred
// names a base URL that is currently healthy, it is returned directly;
// otherwise the configured strategy chooses among the routable set.
func (m *Manager) SelectEndpoint(ctx context.Context, providerID string, preferred string) (*domain.EndpointSlot, error) {
	candidates := m.slotsForProvider(providerID)

	now := time.Now()
	var routable []*domain.EndpointSlot
	for _, s := range candidates {
		if s.HasCapacity() && !s.IsCircuitOpen(now) {
			if s.BaseURL == preferred {
				return s, nil
			}
			routable = append(routable, s)
		}
	}
	if len(routable) == 0 {
		return nil, domain.NewDispatchError("no_capacity", 503, nil)
	}
	return m.strategy.Select(ctx, routable)
}

func (m *Manager) Status() []ports.EndpointSlotStatus {
	var out []ports.EndpointSlotStatus
	m.slots.Range(func(k string, s *domain.EndpointSlot) bool {
		out = append(out, ports.EndpointSlotStatus{
			ProviderID:   s.ProviderID,
			BaseURL:      s.BaseURL,
			InFlight:     s.InFlight(),
			BreakerState: s.BreakerState(),
		})
		return true
	})
	return out
}

func (m *Manager) ResetCircuitBreakers() {
	m.slots.Range(func(k string, s *domain.EndpointSlot) bool {
		s.ResetBreaker()
		return true
	})
}
