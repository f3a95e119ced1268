package app

import (
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/util"
)

var bodyCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// priorityHeaders maps the x-ccr-priority values spec.md §6 names to the
// additive priority adjustment the model pool's queue uses.
var priorityHeaders = map[string]int{
	"high":   10,
	"normal": 0,
	"low":    -10,
}

// dialectForPath picks the ingress dialect a route implies: Anthropic's
// Messages API shape on /v1/messages, OpenAI's chat-completions shape
// everywhere else under the dispatch surface.
func dialectForPath(path string) string {
	if strings.HasSuffix(path, constants.PathV1Messages) {
		return constants.FamilyAnthropic
	}
	return constants.FamilyOpenAI
}

// buildRequestContext reads and parses the request body once, splitting
// the "model" field into either the custom-model alias or the explicit
// "<provider>,<model>" pinned form, and folds in the priority/session
// headers spec.md §6 names.
func buildRequestContext(r *http.Request, router interface{ Classify(string, int, bool) string }) (*domain.RequestContext, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	var parsed map[string]interface{}
	_ = bodyCodec.Unmarshal(body, &parsed) // malformed body is surfaced downstream as invalid_request

	requestedModel := util.GetString(parsed, "model")
	pinnedProvider := ""
	if requestedModel != constants.CustomModelID {
		if idx := strings.IndexByte(requestedModel, ','); idx >= 0 {
			pinnedProvider = strings.TrimSpace(requestedModel[:idx])
			requestedModel = strings.TrimSpace(requestedModel[idx+1:])
		}
	}

	stream := false
	if v, ok := parsed["stream"]; ok {
		if b, ok := v.(bool); ok {
			stream = b
		}
	}

	hasWebSearch := hasWebSearchTool(parsed)
	estimatedTokens := estimateTokens(parsed)
	scenario := router.Classify(requestedModel, estimatedTokens, hasWebSearch)

	rc := &domain.RequestContext{
		RequestID:      firstNonEmpty(r.Header.Get(constants.HeaderXRequestID), util.GenerateRequestID()),
		StartTime:      time.Now(),
		IngressDialect: dialectForPath(r.URL.Path),
		RequestedModel: requestedModel,
		PinnedProvider: pinnedProvider,
		Scenario:       scenario,
		Headers:        r.Header,
		Body:           body,
		Stream:         stream,
		Priority:       priorityHeaders[strings.ToLower(r.Header.Get("x-ccr-priority"))],
	}
	return rc, nil
}

// hasWebSearchTool reports whether the parsed body's tool list names a
// web-search tool, the explicit signal the classifier's webSearch
// scenario is keyed on rather than a model-name heuristic.
func hasWebSearchTool(parsed map[string]interface{}) bool {
	tools, ok := parsed["tools"].([]interface{})
	if !ok {
		return false
	}
	for _, t := range tools {
		tm, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		name := strings.ToLower(util.GetString(tm, "name"))
		if strings.Contains(name, "web_search") || strings.Contains(name, "websearch") {
			return true
		}
	}
	return false
}

// estimateTokens approximates token count from the total length of the
// messages' string "content" fields using the common ~4-bytes-per-token
// rule of thumb; good enough for the
// longContext threshold check, which only needs an order-of-magnitude
// estimate.
func estimateTokens(parsed map[string]interface{}) int {
	messages, ok := parsed["messages"].([]interface{})
	if !ok {
		return 0
	}
	var chars int
	for _, m := range messages {
		mm, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		chars += len(util.GetString(mm, "content"))
	}
	return chars / 4
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
