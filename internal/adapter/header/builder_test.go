package header

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

func testRC(stream bool, extraHeaders http.Header) *domain.RequestContext {
	h := http.Header{}
	for k, v := range extraHeaders {
		h[k] = v
	}
	return &domain.RequestContext{
		RequestID: "req-42",
		StartTime: time.Now(),
		Stream:    stream,
		Headers:   h,
	}
}

func TestBuildSetsDefaultBearerWhenAuthNotApplied(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "OpenAI", "https://api.openai.com", constants.FamilyOpenAI, 0, 1, nil, nil)

	h, err := b.Build(testRC(false, nil), provider, "sk-test", false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", h.Get(constants.HeaderAuthorization))
}

func TestBuildSkipsDefaultBearerWhenAuthApplied(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "Anthropic", "https://api.anthropic.com", constants.FamilyAnthropic, 0, 1, nil, nil)

	h, err := b.Build(testRC(false, nil), provider, "sk-test", true)
	require.NoError(t, err)
	assert.Empty(t, h.Get(constants.HeaderAuthorization))
}

func TestBuildAppliesIFlowLowercaseOverlay(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "IFlow", "https://iflow.example.com", constants.FamilyIFlow, 0, 1, nil, nil)

	h, err := b.Build(testRC(false, nil), provider, "key", false)
	require.NoError(t, err)
	assert.Equal(t, "olla-gateway", h.Get("x-client-type"))
}

func TestBuildStreamAcceptForcesJSONForIFlow(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "IFlow", "https://iflow.example.com", constants.FamilyIFlow, 0, 1, nil, nil)

	h, err := b.Build(testRC(true, nil), provider, "key", false)
	require.NoError(t, err)
	assert.Equal(t, constants.ContentTypeJSON, h.Get(constants.HeaderAccept))
}

func TestBuildStreamAcceptUsesSSEForOtherFamilies(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "OpenAI", "https://api.openai.com", constants.FamilyOpenAI, 0, 1, nil, nil)

	h, err := b.Build(testRC(true, nil), provider, "key", false)
	require.NoError(t, err)
	assert.Equal(t, constants.ContentTypeSSE, h.Get(constants.HeaderAccept))
}

func TestBuildForwardsSessionHeaders(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "OpenAI", "https://api.openai.com", constants.FamilyOpenAI, 0, 1, nil, nil)
	extra := http.Header{}
	extra.Set("X-Session-Id", "sess-1")

	h, err := b.Build(testRC(false, extra), provider, "key", false)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", h.Get("Session-Id"))
}

func TestBuildCustomHeadersDedupLastWriteWins(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "OpenAI", "https://api.openai.com", constants.FamilyOpenAI, 0, 1, nil, nil)
	provider.CustomHeaders = []domain.HeaderKV{
		{Key: "X-Custom", Value: "first"},
		{Key: "x-custom", Value: "second"},
	}

	h, err := b.Build(testRC(false, nil), provider, "key", false)
	require.NoError(t, err)
	assert.Equal(t, "second", h.Get("X-Custom"))
}

func TestBuildSignsWhenSignerEnabled(t *testing.T) {
	b := NewBuilder()
	provider := domain.NewProvider("p1", "Custom", "https://example.com", constants.FamilyCustom, 0, 1, nil, nil)
	provider.Signer = &domain.SignerConfig{
		Enabled:         true,
		HeaderFields:    []string{constants.HeaderXRequestID},
		SignatureHeader: "X-Olla-Signature",
		TimestampHeader: "X-Olla-Timestamp",
	}

	h, err := b.Build(testRC(false, nil), provider, "secret", false)
	require.NoError(t, err)
	assert.NotEmpty(t, h.Get("X-Olla-Signature"))
	assert.NotEmpty(t, h.Get("X-Olla-Timestamp"))
}
