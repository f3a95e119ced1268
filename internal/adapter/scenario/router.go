// Package scenario classifies an inbound request into a routing
// scenario and plans failover alternatives for custom-model requests.
package scenario

import (
	"strings"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/constants"
)

// Router classifies requests into one of the scenario buckets using the
// requested model's name and an estimated token count, the same shape
// as a suffix/threshold-driven classifier.
type Router struct {
	cfg config.RouterConfig
}

func NewRouter(cfg config.RouterConfig) *Router {
	return &Router{cfg: cfg}
}

// Classify returns one of constants.Scenario{Default,Background,Think,
// LongContext,WebSearch}. webSearch is signalled explicitly by the
// caller (tool use in the request body) rather than inferred from the
// model name, so it takes precedence when set.
func (r *Router) Classify(model string, estimatedTokens int, hasWebSearchTool bool) string {
	if hasWebSearchTool {
		return constants.ScenarioWebSearch
	}
	for _, suffix := range r.cfg.BackgroundModelSuffixes {
		if strings.HasSuffix(model, suffix) {
			return constants.ScenarioBackground
		}
	}
	for _, suffix := range r.cfg.ThinkModelSuffixes {
		if strings.HasSuffix(model, suffix) {
			return constants.ScenarioThink
		}
	}
	if r.cfg.LongContextTokenThreshold > 0 && estimatedTokens >= r.cfg.LongContextTokenThreshold {
		return constants.ScenarioLongContext
	}
	return constants.ScenarioDefault
}

// IsCustomModel reports whether the requested model is the alias that
// opts a request into provider-agnostic routing and failover.
func IsCustomModel(model string) bool {
	return model == constants.CustomModelID
}

// RoutingKeyFor resolves a scenario to the operator-configured
// "provider,model" routing key a custom-model request should dispatch to.
// ok is false when the scenario has no configured key (e.g. an unset
// key for the forward-compatible "image" scenario) or the name is
// unrecognised.
func (r *Router) RoutingKeyFor(scenarioName string) (providerID, model string, ok bool) {
	var key string
	switch scenarioName {
	case constants.ScenarioDefault:
		key = r.cfg.Default
	case constants.ScenarioBackground:
		key = r.cfg.Background
	case constants.ScenarioThink:
		key = r.cfg.Think
	case constants.ScenarioLongContext:
		key = r.cfg.LongContext
	case constants.ScenarioWebSearch:
		key = r.cfg.WebSearch
	case "image":
		key = r.cfg.Image
	}
	providerID, model, ok = strings.Cut(key, ",")
	return providerID, model, ok && providerID != "" && model != ""
}
