package ports

import (
	"net/http"

	"github.com/olla-run/olla/internal/core/domain"
)

// HeaderBuilder produces the final header set for an upstream request:
// defaults, dialect-family overlays, session tracking, custom overrides
// and an optional signature.
type HeaderBuilder interface {
	// Build returns the headers to send upstream. authApplied signals
	// that a transformer's Auth hook already set the authorization
	// header for this request, so the builder must not also apply its
	// own default bearer token.
	Build(rc *domain.RequestContext, provider *domain.Provider, apiKey string, authApplied bool) (http.Header, error)
}
