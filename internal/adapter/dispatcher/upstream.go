package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olla-run/olla/internal/adapter/sse"
	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
)

// singlePath dispatches rc to exactly one candidate, reserving capacity
// on both the model slot (per provider+model) and the endpoint slot
// (per provider base URL) before the upstream call, and releasing both
// afterwards regardless of outcome.
func (d *Dispatcher) singlePath(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, c domain.Alternative) (*domain.RoutingDecision, error) {
	if !d.pool.ReserveSlot(c.ProviderID, c.Model) {
		if err := d.pool.Enqueue(ctx, c.ProviderID, c.Model, rc.Priority); err != nil {
			return nil, queueError(err)
		}
		// Enqueue reserves the slot internally on success; go straight to confirm.
	}
	d.pool.ConfirmSlot(c.ProviderID, c.Model)

	if !d.endpoints.ReserveSlot(c.ProviderID) {
		d.pool.ReleaseSlot(c.ProviderID, c.Model, false)
		return nil, domain.NewDispatchError(constants.RoutingReasonNoCapacity, http.StatusServiceUnavailable, nil)
	}
	d.endpoints.ConfirmSlot(c.ProviderID)

	success := false
	defer func() {
		d.endpoints.ReleaseSlot(c.ProviderID, success)
		d.pool.ReleaseSlot(c.ProviderID, c.Model, success)
	}()

	slot, err := d.endpoints.SelectEndpoint(ctx, c.ProviderID, "")
	if err != nil {
		return nil, err
	}

	decision, err := d.callUpstream(ctx, w, rc, c, slot.BaseURL, false)
	if err != nil {
		d.classifyAndMark(c, err)
		return nil, err
	}
	success = true
	return decision, nil
}

// upstreamPath picks the provider-native endpoint path for a family.
// Anthropic speaks /v1/messages natively; every other supported family
// (openai, iflow, custom OpenAI-compatible backends) speaks the OpenAI
// chat-completions shape.
func upstreamPath(family string) string {
	if family == constants.FamilyAnthropic {
		return constants.PathV1Messages
	}
	return constants.PathV1ChatCompletions
}

func queueError(err error) error {
	var derr *domain.DispatchError
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &derr) && derr.Reason == constants.RoutingReasonQueueTimeout) {
		return domain.NewDispatchError(constants.RoutingReasonQueueTimeout, http.StatusServiceUnavailable, err)
	}
	return domain.NewDispatchError(constants.RoutingReasonQueueFull, http.StatusServiceUnavailable, err)
}

// classifyAndMark records a rate-limit cooldown against the slot when
// the upstream failure was a 429, so the next selector pass sees it as
// unavailable without waiting for the circuit breaker to trip.
func (d *Dispatcher) classifyAndMark(c domain.Alternative, err error) {
	var perr *domain.ProviderError
	if errors.As(err, &perr) && perr.Kind == domain.ErrorKindRateLimit {
		d.pool.MarkRateLimit(c.ProviderID, c.Model, perr.RetryAfter)
	}
}

// callUpstream builds the provider-native request, sends it, and writes
// the (possibly re-transformed) response back to w. isRace forces an
// iflow candidate through its session-minting request legs even when
// the chain would otherwise be bypassed, so concurrent racers never
// share a provider-side session.
func (d *Dispatcher) callUpstream(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, c domain.Alternative, baseURL string, isRace bool) (*domain.RoutingDecision, error) {
	provider, ok := d.registry.Get(c.ProviderID)
	if !ok {
		return nil, domain.NewDispatchError(constants.RoutingReasonModelNotFound, http.StatusNotFound, nil)
	}

	chain := d.transformers.Resolve(rc.IngressDialect, provider.Family)

	body, err := d.buildUpstreamBody(ctx, rc, chain, provider, isRace)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: transform request: %w", err)
	}

	doRequest := func(reqCtx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, baseURL+upstreamPath(provider.Family), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("dispatcher: build request: %w", err)
		}

		apiKey := provider.NextAPIKey()

		authApplied, err := d.applyAuth(reqCtx, rc, provider, apiKey, req)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: auth: %w", err)
		}

		headers, err := d.headers.Build(rc, provider, apiKey, authApplied)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: build headers: %w", err)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return d.httpClient.Do(req)
	}

	resp, err := doRequest(ctx)
	if err != nil {
		perr := d.classifier.ClassifyTransport(c.ProviderID, provider.Family, c.Model, err)
		return nil, perr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, d.classifier.ClassifyHTTP(c.ProviderID, provider.Family, c.Model, resp.StatusCode, respBody, resp.Header)
	}

	if rc.Stream {
		// reissueUpstream backs the SSE manager's mid-stream reconnect: on a
		// transport-level read error it re-sends the same built request to
		// get a fresh body rather than aborting the client's stream.
		reissueUpstream := func(reqCtx context.Context) (io.ReadCloser, error) {
			resp, err := doRequest(reqCtx)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 400 {
				resp.Body.Close()
				return nil, fmt.Errorf("dispatcher: reconnect upstream returned status %d", resp.StatusCode)
			}
			return resp.Body, nil
		}
		if err := d.pumpResponse(ctx, w, rc, chain, resp, c, reissueUpstream); err != nil {
			return nil, err
		}
	} else {
		if err := d.writeBuffered(ctx, w, rc, chain, resp); err != nil {
			return nil, err
		}
	}

	reason := constants.RoutingReasonDispatched
	if isRace {
		reason = constants.RoutingReasonRaceWon
	}
	decision := domain.NewRoutingDecision(domain.ActionDispatched, reason, c.ProviderID, c.Model)
	decision.Raced = isRace
	return decision, nil
}

func (d *Dispatcher) buildUpstreamBody(ctx context.Context, rc *domain.RequestContext, chain []ports.Transformer, provider *domain.Provider, isRace bool) ([]byte, error) {
	if len(chain) == 0 && isRace && provider.Family == constants.FamilyIFlow {
		t, ok := d.transformers.TransformerFor(constants.FamilyIFlow)
		if !ok {
			return rc.Body, nil
		}
		body, err := t.RequestOut(ctx, rc, rc.Body)
		if err != nil {
			return nil, err
		}
		// Drop any inherited session id so RequestIn mints a fresh one for
		// this racer.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		delete(fields, "session_id")
		if body, err = json.Marshal(fields); err != nil {
			return nil, err
		}
		return t.RequestIn(ctx, rc, body)
	}
	return d.transformers.RunRequestOut(ctx, rc, chain, rc.Body)
}

// applyAuth lets a provider-family transformer attach its dialect's
// credential header (e.g. Anthropic's x-api-key) ahead of the generic
// header builder, which must then skip its own default bearer token.
func (d *Dispatcher) applyAuth(ctx context.Context, rc *domain.RequestContext, provider *domain.Provider, apiKey string, req *http.Request) (bool, error) {
	t, ok := d.transformers.TransformerFor(provider.Family)
	if !ok || !t.HasAuth() {
		return false, nil
	}
	if err := t.Auth(ctx, rc, req.Header, apiKey); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) writeBuffered(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, chain []ports.Transformer, resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("dispatcher: read upstream body: %w", err)
	}

	unified, err := d.transformers.RunResponseOut(ctx, rc, chain, raw)
	if err != nil {
		return fmt.Errorf("dispatcher: transform response: %w", err)
	}
	out, err := d.transformers.RunResponseIn(ctx, rc, chain, unified)
	if err != nil {
		return fmt.Errorf("dispatcher: transform response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(out)
	return err
}

func (d *Dispatcher) pumpResponse(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, chain []ports.Transformer, resp *http.Response, c domain.Alternative, reissueUpstream func(context.Context) (io.ReadCloser, error)) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	target := w
	var tw *sse.TransformingWriter
	if len(chain) > 0 {
		tw = sse.NewTransformingWriter(w, ctx, rc, d.transformers, chain)
		target = tw
	}

	opts := d.streamOpts
	opts.ReissueUpstream = reissueUpstream
	opts.OnStaggeredDetected = func() {
		if d.log != nil {
			d.log.WithRequestID(rc.RequestID).Warn("staggered stream detected", "provider", c.ProviderID, "model", c.Model)
		}
		if d.events != nil {
			d.events.PublishAsync(domain.DispatchEvent{
				Type:       domain.EventStaggeredStream,
				RequestID:  rc.RequestID,
				ProviderID: c.ProviderID,
				Model:      c.Model,
				At:         time.Now(),
			})
		}
	}

	result := d.streams.Pump(ctx, target, resp.Body, opts)
	if tw != nil {
		if err := tw.Close(); err != nil {
			return err
		}
	}
	return result.Err
}
