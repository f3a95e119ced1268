package app

import (
	"encoding/json"
	"net/http"

	"github.com/olla-run/olla/internal/core/constants"
)

func (a *Application) modelPoolStatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(a.pool.Status())
}

// modelPoolQueueHandler reports queue depth per slot, derived from the
// same Status() feed as the status endpoint; queue depth is a field on
// ModelSlotStatus rather than a separate tracked structure.
func (a *Application) modelPoolQueueHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(a.pool.Status())
}

func (a *Application) modelPoolConfigHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(a.cfg.ModelPool)
}

func (a *Application) modelPoolResetBreakersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.pool.ResetCircuitBreakers()
	writeAck(w)
}

func (a *Application) modelPoolClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cleared := a.pool.ClearQueues()
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]int{"cleared": cleared})
}

func (a *Application) endpointGroupsStatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(a.endpoints.Status())
}

func (a *Application) endpointGroupsResetBreakersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.endpoints.ResetCircuitBreakers()
	writeAck(w)
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
