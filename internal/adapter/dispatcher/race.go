package dispatcher

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

// raceGate arbitrates which of several concurrently-dispatched
// candidates gets to actually write its response to the client. The
// first candidate to call Header, WriteHeader or Write claims the gate;
// every other candidate's writer becomes a sink from that point on.
type raceGate struct {
	claimed atomic.Bool
}

func (g *raceGate) claim() bool {
	return g.claimed.CompareAndSwap(false, true)
}

// claimingWriter wraps the real http.ResponseWriter for one race
// candidate. Until this candidate either wins or loses the gate it
// buffers nothing; the decision is made on the first call to Header,
// WriteHeader or Write, whichever comes first.
type claimingWriter struct {
	real  http.ResponseWriter
	gate  *raceGate
	onWin func()

	decided bool
	won     bool
}

func newClaimingWriter(real http.ResponseWriter, gate *raceGate, onWin func()) *claimingWriter {
	return &claimingWriter{real: real, gate: gate, onWin: onWin}
}

func (cw *claimingWriter) decide() bool {
	if !cw.decided {
		cw.decided = true
		cw.won = cw.gate.claim()
		if cw.won {
			cw.onWin()
		}
	}
	return cw.won
}

func (cw *claimingWriter) Header() http.Header {
	if cw.decide() {
		return cw.real.Header()
	}
	return http.Header{}
}

func (cw *claimingWriter) Write(p []byte) (int, error) {
	if cw.decide() {
		return cw.real.Write(p)
	}
	return len(p), nil
}

func (cw *claimingWriter) WriteHeader(status int) {
	if cw.decide() {
		cw.real.WriteHeader(status)
	}
}

func (cw *claimingWriter) Flush() {
	if cw.won {
		if f, ok := cw.real.(http.Flusher); ok {
			f.Flush()
		}
	}
}

type raceOutcome struct {
	candidate domain.Alternative
	decision  *domain.RoutingDecision
	err       error
	won       bool
}

// runRace dispatches the top-scored candidates concurrently against
// independently-cancellable contexts and lets the first one to reach
// its first client write claim the response; the rest are cancelled at
// that point. A candidate whose upstream call completed successfully
// but lost the client-write race, or one that was cancelled mid-flight,
// releases its slot as a success rather than a failure — losing a race
// is not evidence the provider is unhealthy.
func (d *Dispatcher) runRace(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, candidates []domain.Alternative) (*domain.RoutingDecision, error) {
	gate := &raceGate{}

	ctxs := make([]context.Context, len(candidates))
	cancels := make([]context.CancelFunc, len(candidates))
	for i := range candidates {
		ctxs[i], cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	results := make(chan raceOutcome, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			cw := newClaimingWriter(w, gate, func() {
				for j, cancel := range cancels {
					if j != i {
						cancel()
					}
				}
			})
			decision, err := d.dispatchRaceCandidate(ctxs[i], cw, rc, c)
			results <- raceOutcome{candidate: c, decision: decision, err: err, won: cw.won}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var winner *raceOutcome
	var lastErr error
	for res := range results {
		res := res
		if res.won && res.err == nil {
			winner = &res
			continue
		}
		if res.err != nil {
			lastErr = res.err
			d.publishRaceLoss(rc, res.candidate, res.err)
		}
	}

	if winner == nil {
		if lastErr == nil {
			lastErr = domain.NewDispatchError(constants.RoutingReasonNoAlternatives, http.StatusServiceUnavailable, nil)
		}
		return nil, lastErr
	}
	winner.decision.Raced = true
	winner.decision.Attempts = len(candidates)
	return winner.decision, nil
}

// dispatchRaceCandidate mirrors singlePath's reservation discipline but
// never enqueues: a race candidate without an immediately free slot is
// simply not worth waiting on, since another candidate is already
// running concurrently.
func (d *Dispatcher) dispatchRaceCandidate(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, c domain.Alternative) (*domain.RoutingDecision, error) {
	if !d.pool.ReserveSlot(c.ProviderID, c.Model) {
		return nil, domain.NewDispatchError(constants.RoutingReasonNoCapacity, http.StatusServiceUnavailable, nil)
	}
	d.pool.ConfirmSlot(c.ProviderID, c.Model)

	if !d.endpoints.ReserveSlot(c.ProviderID) {
		d.pool.ReleaseSlot(c.ProviderID, c.Model, true)
		return nil, domain.NewDispatchError(constants.RoutingReasonNoCapacity, http.StatusServiceUnavailable, nil)
	}
	d.endpoints.ConfirmSlot(c.ProviderID)

	success := false
	defer func() {
		lost := ctx.Err() != nil && !success
		releaseAsSuccess := success || lost
		d.endpoints.ReleaseSlot(c.ProviderID, releaseAsSuccess)
		d.pool.ReleaseSlot(c.ProviderID, c.Model, releaseAsSuccess)
	}()

	slot, err := d.endpoints.SelectEndpoint(ctx, c.ProviderID, "")
	if err != nil {
		return nil, err
	}

	decision, err := d.callUpstream(ctx, w, rc, c, slot.BaseURL, true)
	if err != nil {
		if ctx.Err() == nil {
			d.classifyAndMark(c, err)
		}
		return nil, err
	}
	success = true
	return decision, nil
}

func (d *Dispatcher) publishRaceLoss(rc *domain.RequestContext, c domain.Alternative, err error) {
	if d.events == nil {
		return
	}
	d.events.PublishAsync(domain.DispatchEvent{
		Type:       domain.EventRaceLost,
		RequestID:  rc.RequestID,
		ProviderID: c.ProviderID,
		Model:      c.Model,
		Reason:     err.Error(),
	})
}
