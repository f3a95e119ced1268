package ports

import (
	"net/http"

	"github.com/olla-run/olla/internal/core/domain"
)

// ErrorClassifier normalises a raw upstream failure (HTTP status + body +
// headers, or a transport-level error) into a domain.ProviderError
// carrying a retryability verdict, a kind the dispatcher can act on, and
// (for rate limits) the upstream-advertised retryAfter cooldown.
type ErrorClassifier interface {
	ClassifyHTTP(providerID, family, model string, statusCode int, body []byte, headers http.Header) *domain.ProviderError
	ClassifyTransport(providerID, family, model string, err error) *domain.ProviderError
}
