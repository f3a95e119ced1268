// Package modelpool implements ports.ModelPool: per-(provider,model)
// capacity, queueing and circuit-breaker accounting, the dispatch-side
// twin of the endpoint group manager's per-backend accounting.
package modelpool

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

// Pool is the concrete ports.ModelPool. Slots are created lazily on
// first use and live for the process lifetime; xsync.Map gives us
// lock-free reads on the hot path of every dispatch.
type Pool struct {
	slots *xsync.Map[string, *domain.ModelSlot]

	cfg    config.ModelPoolConfig
	logger *logger.StyledLogger

	stopTicker chan struct{}
}

func New(cfg config.ModelPoolConfig, log *logger.StyledLogger) *Pool {
	p := &Pool{
		slots:      xsync.NewMap[string, *domain.ModelSlot](),
		cfg:        cfg,
		logger:     log,
		stopTicker: make(chan struct{}),
	}
	go p.runQueueTicker()
	return p
}

func (p *Pool) Close() {
	close(p.stopTicker)
}

func key(providerID, model string) string {
	return providerID + "::" + model
}

func (p *Pool) slot(providerID, model string) *domain.ModelSlot {
	s, _ := p.slots.LoadOrCompute(key(providerID, model), func() (*domain.ModelSlot, bool) {
		slot := domain.NewModelSlot(providerID, model, p.cfg.DefaultMaxConcurrent, p.cfg.DefaultMaxQueueDepth)
		slot.WithBreakerConfig(p.cfg.BreakerFailureThreshold, p.cfg.BreakerCooldown)
		return slot, false
	})
	return s
}

func (p *Pool) HasCapacity(providerID, model string) bool {
	s := p.slot(providerID, model)
	return s.HasCapacity() && !s.IsCircuitOpen(time.Now()) && !s.IsRateLimited(time.Now())
}

func (p *Pool) ReserveSlot(providerID, model string) bool {
	s := p.slot(providerID, model)
	if s.IsCircuitOpen(time.Now()) || s.IsRateLimited(time.Now()) {
		return false
	}
	return s.Reserve()
}

func (p *Pool) ConfirmSlot(providerID, model string) {
	p.slot(providerID, model).Confirm()
}

func (p *Pool) ReleaseReservation(providerID, model string) {
	p.slot(providerID, model).ReleaseReservation()
}

func (p *Pool) ReleaseSlot(providerID, model string, success bool) {
	s := p.slot(providerID, model)
	s.Release()
	now := time.Now()
	if success {
		s.RecordSuccess()
	} else {
		prevState := s.BreakerState()
		s.RecordFailure(now)
		if s.BreakerState() == domain.BreakerOpen && prevState != domain.BreakerOpen {
			p.logger.InfoBreakerState("circuit breaker tripped for", fmt.Sprintf("%s/%s", providerID, model), s.BreakerState())
		}
	}
	p.drainQueue(providerID, model)
}

func (p *Pool) MarkRateLimit(providerID, model string, retryAfter time.Duration) time.Duration {
	return p.slot(providerID, model).MarkRateLimited(time.Now(), retryAfter)
}

func (p *Pool) IsAvailable(providerID, model string) bool {
	s := p.slot(providerID, model)
	now := time.Now()
	return !s.IsCircuitOpen(now) && !s.IsRateLimited(now)
}

// Enqueue waits for a slot to free up, reserving it on the caller's
// behalf before returning nil. Returns a *domain.DispatchError on
// timeout, queue-full or context cancellation.
func (p *Pool) Enqueue(ctx context.Context, providerID, model string, priority int) error {
	s := p.slot(providerID, model)

	if s.Reserve() {
		return nil
	}

	req := &domain.QueuedRequest{
		ID:         fmt.Sprintf("%s-%d", key(providerID, model), time.Now().UnixNano()),
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Ctx:        ctx,
		Ready:      make(chan struct{}),
	}
	if !s.Queue.Enqueue(req) {
		return domain.NewDispatchError("queue_full", 503, nil)
	}

	timeout := p.cfg.QueueTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-req.Ready:
		return req.Err
	case <-ctx.Done():
		s.Queue.Remove(req.ID)
		return domain.NewDispatchError("context_cancelled", 499, ctx.Err())
	case <-timer.C:
		s.Queue.Remove(req.ID)
		return domain.NewDispatchError("queue_timeout", 504, nil)
	}
}

// drainQueue is called after a slot frees up; it reserves capacity on
// behalf of the next waiter and wakes it, mirroring a ticket-dispenser
// hand-off instead of waking every waiter to race for the slot.
func (p *Pool) drainQueue(providerID, model string) {
	s := p.slot(providerID, model)
	for s.HasCapacity() {
		req, ok := s.Queue.Dequeue()
		if !ok {
			return
		}
		if req.Ctx.Err() != nil {
			continue
		}
		if !s.Reserve() {
			return
		}
		close(req.Ready)
	}
}

// runQueueTicker periodically sweeps every slot's queue so waiters are
// served even when no new release happens to trigger drainQueue (e.g.
// the slot became free because a rate-limit cooldown or breaker cooldown
// elapsed, not because of a Release call).
func (p *Pool) runQueueTicker() {
	interval := p.cfg.QueueTickInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopTicker:
			return
		case <-ticker.C:
			p.slots.Range(func(k string, s *domain.ModelSlot) bool {
				p.drainQueue(s.ProviderID, s.Model)
				return true
			})
		}
	}
}

func (p *Pool) GetAvailableAlternatives(providerID, model string) []domain.Alternative {
	var alts []domain.Alternative
	now := time.Now()
	p.slots.Range(func(k string, s *domain.ModelSlot) bool {
		if s.Model != model {
			return true
		}
		if s.IsCircuitOpen(now) || s.IsRateLimited(now) || !s.HasCapacity() {
			return true
		}
		load := float64(s.Occupied()) / float64(maxInt64(s.MaxConcurrent, 1))
		alts = append(alts, domain.Alternative{ProviderID: s.ProviderID, Model: model, Score: 1 - load})
		return true
	})
	return alts
}

func (p *Pool) Status() []ports.ModelSlotStatus {
	var out []ports.ModelSlotStatus
	p.slots.Range(func(k string, s *domain.ModelSlot) bool {
		now := time.Now()
		out = append(out, ports.ModelSlotStatus{
			ProviderID:    s.ProviderID,
			Model:         s.Model,
			InFlight:      s.InFlight(),
			Reserved:      s.Reserved(),
			MaxConcurrent: s.MaxConcurrent,
			QueueDepth:    s.Queue.Len(),
			BreakerState:  s.BreakerState(),
			CircuitOpen:   s.IsCircuitOpen(now),
			RateLimited:   s.IsRateLimited(now),
			SuccessCount:  s.SuccessCount(),
			FailureCount:  s.FailureCount(),
		})
		return true
	})
	return out
}

func (p *Pool) ResetCircuitBreakers() {
	p.slots.Range(func(k string, s *domain.ModelSlot) bool {
		s.ResetBreaker()
		return true
	})
}

func (p *Pool) ClearQueues() int {
	cleared := 0
	p.slots.Range(func(k string, s *domain.ModelSlot) bool {
		drained := s.Queue.Clear()
		for _, req := range drained {
			req.Err = domain.NewDispatchError("queue_cleared", 503, nil)
			close(req.Ready)
		}
		cleared += len(drained)
		return true
	})
	return cleared
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
