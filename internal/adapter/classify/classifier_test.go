package classify

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/olla-run/olla/internal/core/domain"
)

func TestClassifyHTTPRateLimit(t *testing.T) {
	c := New()
	err := c.ClassifyHTTP("p1", "openai", "gpt-4", http.StatusTooManyRequests, []byte("slow down"), nil)

	assert.Equal(t, domain.ErrorKindRateLimit, err.Kind)
	assert.True(t, err.Retryable)
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus())
}

func TestClassifyHTTPAuthNotRetryable(t *testing.T) {
	c := New()
	err := c.ClassifyHTTP("p1", "openai", "gpt-4", http.StatusUnauthorized, nil, nil)

	assert.Equal(t, domain.ErrorKindAuth, err.Kind)
	assert.False(t, err.Retryable)
}

func TestClassifyHTTPBodyCodeOverridesStatusBucket(t *testing.T) {
	c := New()
	body := []byte(`{"error":{"code":"insufficient_quota","message":"you're out"}}`)
	err := c.ClassifyHTTP("p1", "openai", "gpt-4", http.StatusBadRequest, body, nil)

	assert.Equal(t, domain.ErrorKindInsufficientQuota, err.Kind)
	assert.False(t, err.Retryable)
}

func TestClassifyHTTPAnthropicOverloadedIsRetryable(t *testing.T) {
	c := New()
	body := []byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	err := c.ClassifyHTTP("p1", "anthropic", "claude-3", http.StatusServiceUnavailable, body, nil)

	assert.Equal(t, domain.ErrorKindOverloaded, err.Kind)
	assert.True(t, err.Retryable)
}

func TestClassifyHTTPRateLimitUsesRetryAfterHeader(t *testing.T) {
	c := New()
	headers := http.Header{"Retry-After": []string{"30"}}
	err := c.ClassifyHTTP("p1", "openai", "gpt-4", http.StatusTooManyRequests, nil, headers)

	assert.Equal(t, domain.ErrorKindRateLimit, err.Kind)
	assert.Equal(t, 30*time.Second, err.RetryAfter)
}

func TestClassifyTransportTimeout(t *testing.T) {
	c := New()
	err := c.ClassifyTransport("p1", "openai", "gpt-4", errors.New("context deadline exceeded"))

	assert.Equal(t, domain.ErrorKindTimeout, err.Kind)
}

func TestClassifyTransportConnection(t *testing.T) {
	c := New()
	err := c.ClassifyTransport("p1", "openai", "gpt-4", errors.New("connection reset by peer"))

	assert.Equal(t, domain.ErrorKindConnection, err.Kind)
}

func TestClassifyTransportDialFailure(t *testing.T) {
	c := New()
	err := c.ClassifyTransport("p1", "openai", "gpt-4", errors.New("dial tcp 10.0.0.1:443: connect: connection refused"))

	assert.Equal(t, domain.ErrorKindConnection, err.Kind)
	assert.True(t, err.Retryable)
}
