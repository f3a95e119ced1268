// Package dispatcher implements ports.Dispatcher: the orchestrator that
// wires ModelPool, EndpointGroupManager, ModelSelector, the transformer
// chain, the error classifier and the SSE stream manager into the
// request lifecycle described for the reverse-proxy's dispatch engine.
package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/olla-run/olla/internal/adapter/scenario"
	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
	"github.com/olla-run/olla/internal/logger"
	"github.com/olla-run/olla/pkg/eventbus"
)

// Dispatcher is the concrete ports.Dispatcher. It owns no capacity state
// itself — that lives in the ModelPool/EndpointGroupManager it wraps —
// so it can be rebuilt cheaply if any one collaborator's config changes.
type Dispatcher struct {
	pool         ports.ModelPool
	endpoints    ports.EndpointGroupManager
	selector     ports.ModelSelector
	transformers ports.TransformerChain
	classifier   ports.ErrorClassifier
	streams      ports.StreamManager
	registry     ports.ProviderRegistry
	headers      ports.HeaderBuilder
	metrics      ports.MetricsCollector
	failover     *scenario.Planner
	router       *scenario.Router

	httpClient *http.Client
	streamOpts ports.StreamOptions
	events     *eventbus.EventBus[domain.DispatchEvent]

	log *logger.StyledLogger
}

type Deps struct {
	Pool         ports.ModelPool
	Endpoints    ports.EndpointGroupManager
	Selector     ports.ModelSelector
	Transformers ports.TransformerChain
	Classifier   ports.ErrorClassifier
	Streams      ports.StreamManager
	Registry     ports.ProviderRegistry
	Headers      ports.HeaderBuilder
	Metrics      ports.MetricsCollector
	Failover     *scenario.Planner
	Router       *scenario.Router
	HTTPClient   *http.Client
	StreamOpts   ports.StreamOptions
	Events       *eventbus.EventBus[domain.DispatchEvent]
	Log          *logger.StyledLogger
}

func New(d Deps) *Dispatcher {
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 0} // streaming responses manage their own deadlines
	}
	return &Dispatcher{
		pool:         d.Pool,
		endpoints:    d.Endpoints,
		selector:     d.Selector,
		transformers: d.Transformers,
		classifier:   d.Classifier,
		streams:      d.Streams,
		registry:     d.Registry,
		headers:      d.Headers,
		metrics:      d.Metrics,
		failover:     d.Failover,
		router:       d.Router,
		httpClient:   client,
		streamOpts:   d.StreamOpts,
		events:       d.Events,
		log:          d.Log,
	}
}

// Dispatch is the single entry point the HTTP layer calls once a
// request has been parsed into a domain.RequestContext and classified
// into a scenario. It ranks candidates, races or single-paths the
// dispatch, falls back to failover for custom-model requests, and
// records the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext) (*domain.RoutingDecision, error) {
	start := time.Now()
	isCustom := scenario.IsCustomModel(rc.RequestedModel)

	candidates := d.buildCandidates(rc, isCustom)
	if len(candidates) == 0 {
		return d.finish(rc, start, nil, domain.NewDispatchError(constants.RoutingReasonModelNotFound, http.StatusNotFound, nil))
	}

	ranked := d.selector.Candidates(ctx, rc, candidates)
	raceCount, shouldRace := d.selector.ShouldRace(rc.Scenario, ranked)

	var decision *domain.RoutingDecision
	var err error
	if shouldRace {
		decision, err = d.runRace(ctx, w, rc, ranked[:raceCount])
	} else {
		decision, err = d.singlePath(ctx, w, rc, ranked[0])
	}
	if err == nil {
		return d.finish(rc, start, decision, nil)
	}

	if failoverDecision, failoverErr := d.tryFailover(ctx, w, rc, isCustom, ranked[0], err); failoverErr == nil {
		return d.finish(rc, start, failoverDecision, nil)
	}

	return d.finish(rc, start, nil, err)
}

// tryFailover applies spec's failover rule: only for custom-model
// requests, only when the error is in the failover-eligible set, and
// only among alternatives admissible at the moment of failure.
func (d *Dispatcher) tryFailover(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, isCustom bool, failed domain.Alternative, dispatchErr error) (*domain.RoutingDecision, error) {
	var perr *domain.ProviderError
	if !errors.As(dispatchErr, &perr) || !d.failover.ShouldFailover(isCustom, perr) {
		return nil, dispatchErr
	}

	alternatives := d.pool.GetAvailableAlternatives(failed.ProviderID, failed.Model)
	alternatives = excludeProvider(alternatives, failed.ProviderID)
	alternatives = d.failover.Plan(alternatives)
	if len(alternatives) == 0 {
		return nil, dispatchErr
	}

	decision, err := d.singlePath(ctx, w, rc, alternatives[0])
	if err != nil {
		return nil, err
	}
	decision.Action = domain.ActionFailedOver
	decision.Reason = constants.RoutingReasonFailover
	decision.Attempts = 2
	return decision, nil
}

func excludeProvider(alts []domain.Alternative, providerID string) []domain.Alternative {
	out := alts[:0]
	for _, a := range alts {
		if a.ProviderID != providerID {
			out = append(out, a)
		}
	}
	return out
}

func (d *Dispatcher) finish(rc *domain.RequestContext, start time.Time, decision *domain.RoutingDecision, err error) (*domain.RoutingDecision, error) {
	rec := ports.RequestRecord{
		RequestID: rc.RequestID,
		StartTime: start,
		Model:     rc.RequestedModel,
		Scenario:  rc.Scenario,
		Latency:   time.Since(start),
	}
	if decision != nil {
		rec.ProviderID = decision.ProviderID
		rec.Raced = decision.Raced
		rec.FailedOver = decision.Action == domain.ActionFailedOver
		rec.StatusCode = decision.StatusCode()
	}
	if err != nil {
		rec.Err = err.Error()
		var perr *domain.ProviderError
		if errors.As(err, &perr) {
			rec.StatusCode = perr.HTTPStatus()
		} else {
			var derr *domain.DispatchError
			if errors.As(err, &derr) {
				rec.StatusCode = derr.StatusCode
			}
		}
	}
	if d.metrics != nil {
		d.metrics.RecordRequest(rec)
	}
	if d.events != nil {
		d.publishOutcome(rc, decision, err)
	}
	if d.log != nil {
		if err != nil {
			d.log.WithRequestID(rc.RequestID).Warn("dispatch failed", "model", rc.RequestedModel, "err", err)
		} else {
			d.log.WithRequestID(rc.RequestID).Debug("dispatch ok", "provider", decision.ProviderID, "raced", decision.Raced, "latency", rec.Latency)
		}
	}
	return decision, err
}

func (d *Dispatcher) publishOutcome(rc *domain.RequestContext, decision *domain.RoutingDecision, err error) {
	evt := domain.DispatchEvent{RequestID: rc.RequestID, At: time.Now()}
	if decision != nil {
		evt.ProviderID = decision.ProviderID
		evt.Model = decision.Model
	}
	if err != nil {
		evt.Type = domain.EventDispatchError
		evt.Reason = err.Error()
	} else {
		evt.Type = domain.EventDispatchSuccess
	}
	d.events.PublishAsync(evt)
}

// buildCandidates resolves the initial alternative set before scoring. A
// pinned model request looks up every enabled provider serving that exact
// model. The custom-model alias resolves its concrete provider,model from
// Router's per-scenario routing key (Router.{default,background,think,
// longContext,webSearch,image}); when a scenario has no configured key,
// it falls back to every enabled provider's first configured model so a
// custom-model request is never simply dropped for missing config.
// Scores are left at zero here — the ModelSelector computes the real
// weighted score from live ModelPool status.
func (d *Dispatcher) buildCandidates(rc *domain.RequestContext, isCustom bool) []domain.Alternative {
	var providers []*domain.Provider
	routedModel := ""
	switch {
	case isCustom:
		if d.router != nil {
			if providerID, model, ok := d.router.RoutingKeyFor(rc.Scenario); ok {
				if p, exists := d.registry.Get(providerID); exists {
					providers = []*domain.Provider{p}
					routedModel = model
					break
				}
			}
		}
		providers = d.registry.All()
	case rc.PinnedProvider != "":
		if p, ok := d.registry.Get(rc.PinnedProvider); ok {
			providers = []*domain.Provider{p}
		}
	default:
		providers = d.registry.ProvidersForModel(rc.RequestedModel)
	}

	var out []domain.Alternative
	for _, p := range providers {
		if !p.IsEnabled() {
			continue
		}
		model := rc.RequestedModel
		switch {
		case routedModel != "":
			model = routedModel
		case isCustom:
			if len(p.Models) == 0 {
				continue
			}
			model = p.Models[0]
		}
		if !d.pool.IsAvailable(p.ID, model) || !d.pool.HasCapacity(p.ID, model) {
			continue
		}
		out = append(out, domain.Alternative{ProviderID: p.ID, Model: model})
	}
	return out
}
