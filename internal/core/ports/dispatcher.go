package ports

import (
	"context"
	"net/http"

	"github.com/olla-run/olla/internal/core/domain"
)

// Dispatcher is the entry point the HTTP layer calls once a request has
// been parsed into a domain.RequestContext. It owns candidate selection,
// transformation, single/race dispatch, failover and streaming the
// response back to w.
type Dispatcher interface {
	Dispatch(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext) (*domain.RoutingDecision, error)
}
