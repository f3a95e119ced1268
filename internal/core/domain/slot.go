package domain

import (
	"sync/atomic"
	"time"

	"github.com/olla-run/olla/internal/util"
)

// Circuit breaker states, following the same open/half-open/closed model
// as a request-outcome-driven breaker: failures accumulate, tripping the
// breaker open for a cooldown window, after which a single probe request
// is allowed through (half-open) to decide whether to close again.
const (
	BreakerClosed   int32 = 0
	BreakerOpen     int32 = 1
	BreakerHalfOpen int32 = 2
)

const (
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerCooldown         = 30 * time.Second
	DefaultMaxBackoffMultiplier    = 12
	DefaultBaseBackoff             = 2 * time.Second
	DefaultMaxBackoff              = 60 * time.Second
)

// SlotState is the shared resource-accounting state behind both a
// ModelSlot (keyed by provider+model) and an EndpointSlot (keyed by
// provider base URL): in-flight accounting, a failure-driven circuit
// breaker, and rate-limit cooldown bookkeeping. All fields are accessed
// via atomics so callers never need to hold a lock for the hot path of
// reserving/releasing capacity.
type SlotState struct {
	MaxConcurrent int64

	inFlight   atomic.Int64
	reserved   atomic.Int64

	breakerState    atomic.Int32
	failures        atomic.Int64
	lastFailureUnix atomic.Int64
	lastProbeUnix   atomic.Int64
	failureThreshold int64
	cooldown         time.Duration

	// totalSuccesses/totalFailures are lifetime counts, never reset by the
	// breaker's consecutive-failure bookkeeping above; the selector's
	// health/performance scores read these.
	totalSuccesses atomic.Int64
	totalFailures  atomic.Int64

	rateLimitedUntilUnix atomic.Int64
	rateLimitCount       atomic.Int64
}

func NewSlotState(maxConcurrent int64) *SlotState {
	return &SlotState{
		MaxConcurrent:    maxConcurrent,
		failureThreshold: DefaultBreakerFailureThreshold,
		cooldown:         DefaultBreakerCooldown,
	}
}

func (s *SlotState) WithBreakerConfig(threshold int64, cooldown time.Duration) *SlotState {
	s.failureThreshold = threshold
	s.cooldown = cooldown
	return s
}

// InFlight returns the current number of confirmed-in-progress requests,
// not counting reservations that have not yet been confirmed.
func (s *SlotState) InFlight() int64 { return s.inFlight.Load() }

// Occupied returns reservations plus confirmed in-flight requests; this
// is what capacity checks compare against MaxConcurrent.
func (s *SlotState) Occupied() int64 { return s.inFlight.Load() + s.reserved.Load() }

func (s *SlotState) HasCapacity() bool {
	return s.Occupied() < s.MaxConcurrent
}

// Reserve atomically claims a capacity slot, returning false if the slot
// was already full. Pairs with Confirm or ReleaseReservation.
func (s *SlotState) Reserve() bool {
	if s.reserved.Add(1)+s.inFlight.Load() <= s.MaxConcurrent {
		return true
	}
	s.reserved.Add(-1)
	return false
}

// Confirm converts a reservation into a confirmed in-flight request.
func (s *SlotState) Confirm() {
	s.reserved.Add(-1)
	s.inFlight.Add(1)
}

// ReleaseReservation drops a reservation that never turned into an
// in-flight request (e.g. the caller abandoned dispatch before sending).
func (s *SlotState) ReleaseReservation() {
	s.reserved.Add(-1)
}

// Release completes a confirmed in-flight request.
func (s *SlotState) Release() {
	s.inFlight.Add(-1)
}

func (s *SlotState) IsCircuitOpen(now time.Time) bool {
	state := s.breakerState.Load()
	if state == BreakerClosed {
		return false
	}
	if state == BreakerHalfOpen {
		// Block further callers while the probe is outstanding; re-admit one
		// probe if it has not reported back within a cooldown.
		probe := s.lastProbeUnix.Load()
		if now.Sub(time.Unix(0, probe)) < s.cooldown {
			return true
		}
		return !s.lastProbeUnix.CompareAndSwap(probe, now.UnixNano())
	}
	// BreakerOpen: allow a single probe through once cooldown elapses.
	lastFailure := time.Unix(0, s.lastFailureUnix.Load())
	if now.Sub(lastFailure) < s.cooldown {
		return true
	}
	if s.lastProbeUnix.CompareAndSwap(0, now.UnixNano()) {
		s.breakerState.Store(BreakerHalfOpen)
		return false
	}
	return true
}

func (s *SlotState) RecordSuccess() {
	s.totalSuccesses.Add(1)
	s.failures.Store(0)
	s.breakerState.Store(BreakerClosed)
	s.lastProbeUnix.Store(0)
}

func (s *SlotState) RecordFailure(now time.Time) {
	s.totalFailures.Add(1)
	s.lastFailureUnix.Store(now.UnixNano())
	failures := s.failures.Add(1)
	if failures >= s.failureThreshold {
		s.breakerState.Store(BreakerOpen)
		s.lastProbeUnix.Store(0)
	} else if s.breakerState.Load() == BreakerHalfOpen {
		// probe failed; reopen immediately
		s.breakerState.Store(BreakerOpen)
		s.lastProbeUnix.Store(0)
	}
}

func (s *SlotState) ResetBreaker() {
	s.failures.Store(0)
	s.breakerState.Store(BreakerClosed)
	s.lastProbeUnix.Store(0)
	s.lastFailureUnix.Store(0)
}

func (s *SlotState) BreakerState() int32 { return s.breakerState.Load() }

// SuccessCount and FailureCount are lifetime totals, used by the selector's
// health/performance scoring; they are independent of the breaker's
// consecutive-failure counter, which resets on every success.
func (s *SlotState) SuccessCount() int64 { return s.totalSuccesses.Load() }
func (s *SlotState) FailureCount() int64 { return s.totalFailures.Load() }

// Reserved returns the combined reservation count: requests admitted
// directly but not yet confirmed, plus requests a queued waiter has been
// granted but not yet woken for. SlotState tracks both as a single
// counter since both represent claimed-but-unconfirmed capacity.
func (s *SlotState) Reserved() int64 { return s.reserved.Load() }

// MarkRateLimited applies a rate-limit cooldown. When the upstream
// advertised a retryAfter duration, that value is used directly (capped
// at DefaultMaxBackoff); otherwise falls back to exponential backoff,
// delay = min(base*2^(n-1), max).
func (s *SlotState) MarkRateLimited(now time.Time, retryAfter time.Duration) time.Duration {
	var delay time.Duration
	if retryAfter > 0 {
		delay = retryAfter
		if delay > DefaultMaxBackoff {
			delay = DefaultMaxBackoff
		}
	} else {
		count := s.rateLimitCount.Add(1)
		attempt := int(count)
		if attempt > DefaultMaxBackoffMultiplier {
			attempt = DefaultMaxBackoffMultiplier
		}
		delay = util.CalculateExponentialBackoff(attempt, DefaultBaseBackoff, DefaultMaxBackoff, 0)
	}
	s.rateLimitedUntilUnix.Store(now.Add(delay).UnixNano())
	return delay
}

func (s *SlotState) IsRateLimited(now time.Time) bool {
	until := s.rateLimitedUntilUnix.Load()
	return until != 0 && now.UnixNano() < until
}

func (s *SlotState) ClearRateLimit() {
	s.rateLimitedUntilUnix.Store(0)
	s.rateLimitCount.Store(0)
}
