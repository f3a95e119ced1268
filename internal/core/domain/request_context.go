package domain

import (
	"net/http"
	"time"
)

// RequestContext carries everything the dispatch engine needs to route,
// transform and account for a single inbound chat/completion request.
type RequestContext struct {
	RequestID string
	StartTime time.Time

	IngressDialect string // constants.FamilyOpenAI / FamilyAnthropic
	RequestedModel string
	Scenario       string

	// PinnedProvider is set when the client requested the explicit
	// "<provider>,<model>" form instead of the custom-model alias,
	// narrowing candidate selection to that one provider.
	PinnedProvider string

	Headers http.Header
	Body    []byte
	Stream  bool

	// RoutingKey groups requests that should share queue/capacity
	// accounting; normally provider+model, collapsed to provider+scenario
	// for the custom-model alias.
	RoutingKey string

	Priority int
}

func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.StartTime)
}
