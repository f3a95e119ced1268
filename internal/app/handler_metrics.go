package app

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/olla-run/olla/internal/core/constants"
)

// metricsHandler returns the aggregate MetricsSnapshot. timeWindow/
// provider query params are accepted for forward compatibility with a
// richer per-provider breakdown but the current Aggregate() is global;
// narrowing by provider would require MetricsCollector to index by
// provider, which nothing else in this system needs yet.
func (a *Application) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(a.metricsCol.Aggregate())
}

func (a *Application) metricsRecentHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(a.metricsCol.Recent(limit))
}
