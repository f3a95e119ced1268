package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olla-run/olla/internal/core/constants"
)

type fakeClassifier struct {
	model           string
	estimatedTokens int
	hasWebSearch    bool
}

func (f *fakeClassifier) Classify(model string, estimatedTokens int, hasWebSearch bool) string {
	f.model, f.estimatedTokens, f.hasWebSearch = model, estimatedTokens, hasWebSearch
	return "default"
}

func TestBuildRequestContextParsesPinnedProvider(t *testing.T) {
	body := []byte(`{"model":"openai,gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))

	rc, err := buildRequestContext(req, &fakeClassifier{})
	require.NoError(t, err)

	assert.Equal(t, "openai", rc.PinnedProvider)
	assert.Equal(t, "gpt-4o", rc.RequestedModel)
	assert.Equal(t, constants.FamilyOpenAI, rc.IngressDialect)
}

func TestBuildRequestContextCustomModelHasNoPin(t *testing.T) {
	body := []byte(`{"model":"` + constants.CustomModelID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))

	rc, err := buildRequestContext(req, &fakeClassifier{})
	require.NoError(t, err)

	assert.Empty(t, rc.PinnedProvider)
	assert.Equal(t, constants.CustomModelID, rc.RequestedModel)
}

func TestBuildRequestContextDetectsAnthropicDialect(t *testing.T) {
	body := []byte(`{"model":"claude-3"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(body))

	rc, err := buildRequestContext(req, &fakeClassifier{})
	require.NoError(t, err)

	assert.Equal(t, constants.FamilyAnthropic, rc.IngressDialect)
}

func TestBuildRequestContextPriorityHeader(t *testing.T) {
	body := []byte(`{"model":"custom-model"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("x-ccr-priority", "high")

	rc, err := buildRequestContext(req, &fakeClassifier{})
	require.NoError(t, err)

	assert.Equal(t, 10, rc.Priority)
}

func TestHasWebSearchTool(t *testing.T) {
	parsed := map[string]interface{}{
		"tools": []interface{}{
			map[string]interface{}{"name": "Web_Search_Preview"},
		},
	}
	assert.True(t, hasWebSearchTool(parsed))
	assert.False(t, hasWebSearchTool(map[string]interface{}{}))
}

func TestEstimateTokens(t *testing.T) {
	parsed := map[string]interface{}{
		"messages": []interface{}{
			map[string]interface{}{"content": "12345678"},
		},
	}
	assert.Equal(t, 2, estimateTokens(parsed))
}

func TestDialectForPath(t *testing.T) {
	assert.Equal(t, constants.FamilyAnthropic, dialectForPath("/v1/messages"))
	assert.Equal(t, constants.FamilyOpenAI, dialectForPath("/v1/chat/completions"))
}
