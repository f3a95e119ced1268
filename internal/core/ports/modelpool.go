package ports

import (
	"context"
	"time"

	"github.com/olla-run/olla/internal/core/domain"
)

// ModelPool owns per-(provider,model) capacity, queueing and circuit
// breaker state. Every method is safe for concurrent use; reservations
// must be paired with exactly one of Confirm/ReleaseReservation, and a
// confirmed slot must be paired with exactly one ReleaseSlot.
type ModelPool interface {
	HasCapacity(providerID, model string) bool
	ReserveSlot(providerID, model string) bool
	ConfirmSlot(providerID, model string)
	ReleaseReservation(providerID, model string)
	ReleaseSlot(providerID, model string, success bool)

	// MarkRateLimit records a rate-limit response. retryAfter, when
	// greater than zero, is the upstream-advertised cooldown and is used
	// verbatim instead of the slot's own exponential backoff.
	MarkRateLimit(providerID, model string, retryAfter time.Duration) time.Duration
	IsAvailable(providerID, model string) bool

	// Enqueue waits for capacity to free up, returning once a slot has
	// been reserved for the caller or the context/queue-timeout fires.
	Enqueue(ctx context.Context, providerID, model string, priority int) error

	GetAvailableAlternatives(providerID, model string) []domain.Alternative

	Status() []ModelSlotStatus
	ResetCircuitBreakers()
	ClearQueues() int
}

type ModelSlotStatus struct {
	ProviderID    string
	Model         string
	InFlight      int64
	Reserved      int64
	MaxConcurrent int64
	QueueDepth    int
	BreakerState  int32
	// CircuitOpen is IsCircuitOpen at the moment Status was built. Once
	// an open breaker's cooldown has elapsed, the IsCircuitOpen call that
	// admits the single half-open probe returns false, so CircuitOpen can
	// be false while BreakerState (read just before) reads BreakerOpen.
	// Later callers see true until the probe reports back or another
	// cooldown passes.
	CircuitOpen  bool
	RateLimited  bool
	SuccessCount int64
	FailureCount int64
}
