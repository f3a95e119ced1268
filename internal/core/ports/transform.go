package ports

import (
	"context"
	"net/http"

	"github.com/olla-run/olla/internal/core/domain"
)

// Transformer converts a request/response between the ingress dialect
// and a provider's native dialect. Implementations only need to
// implement the legs they actually change; the chain skips a leg a
// transformer doesn't flag as supported via its capability bits.
type Transformer interface {
	Name() string
	Family() string

	HasRequestOut() bool
	HasRequestIn() bool
	HasResponseOut() bool
	HasResponseIn() bool
	HasAuth() bool

	// RequestOut decodes a body in this transformer's dialect into the
	// unified shape; the chain calls it on the ingress transformer.
	RequestOut(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error)
	// RequestIn encodes the unified shape into this transformer's native
	// dialect; the chain calls it on every provider-side transformer of a
	// translated request.
	RequestIn(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error)
	// ResponseOut decodes a provider-native response chunk/body into the
	// unified shape.
	ResponseOut(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error)
	// ResponseIn renders a unified response chunk/body into this
	// transformer's dialect; the chain calls it on the ingress transformer
	// as the final hop, after ResponseOut.
	ResponseIn(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error)

	// Auth attaches provider credentials to the outgoing request.
	Auth(ctx context.Context, rc *domain.RequestContext, header http.Header, apiKey string) error
}

// TransformerChain resolves and runs the ordered pipeline of
// transformers bridging an ingress dialect to a provider's dialect.
type TransformerChain interface {
	Resolve(ingressDialect, providerFamily string) []Transformer
	// TransformerFor looks up the registered transformer for a dialect
	// family directly, independent of any resolved chain. The dispatcher
	// uses this to find a provider-family transformer's Auth hook even
	// when the chain itself is bypassed (ingress dialect == provider
	// family, so Resolve returns nil).
	TransformerFor(family string) (Transformer, bool)
	RunRequestOut(ctx context.Context, rc *domain.RequestContext, chain []Transformer, body []byte) ([]byte, error)
	RunResponseOut(ctx context.Context, rc *domain.RequestContext, chain []Transformer, chunk []byte) ([]byte, error)
	// RunResponseIn applies the ingress transformer's ResponseIn leg,
	// rendering the unified response RunResponseOut produced into the
	// shape the client's dialect expects. Always the final hop.
	RunResponseIn(ctx context.Context, rc *domain.RequestContext, chain []Transformer, chunk []byte) ([]byte, error)
}
