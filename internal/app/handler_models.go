package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/olla-run/olla/internal/core/constants"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// modelsHandler returns an OpenAI-shaped model list aggregated across
// every enabled provider's configured models, plus the synthetic
// custom-model alias spec.md §6 requires always be present.
func (a *Application) modelsHandler(w http.ResponseWriter, r *http.Request) {
	seen := map[string]bool{constants.CustomModelID: true}
	resp := modelsResponse{
		Object: "list",
		Data:   []modelEntry{{ID: constants.CustomModelID, Object: "model", OwnedBy: "olla"}},
	}

	for _, p := range a.registry.All() {
		if !p.IsEnabled() {
			continue
		}
		for _, m := range p.Models {
			if seen[m] {
				continue
			}
			seen[m] = true
			resp.Data = append(resp.Data, modelEntry{ID: m, Object: "model", OwnedBy: p.ID})
		}
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(resp)
}

// healthHandler reports liveness; it does not probe providers, since
// health in this system is derived from request outcomes, not polling.
func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
