package app

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

type providerBody struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	BaseURL  string   `json:"base_url"`
	Family   string   `json:"family"`
	Priority int      `json:"priority"`
	Weight   float64  `json:"weight"`
	APIKeys  []string `json:"api_keys"`
	Models   []string `json:"models"`
	Enabled  *bool    `json:"enabled,omitempty"`
}

func providerView(p *domain.Provider) providerBody {
	enabled := p.IsEnabled()
	return providerBody{
		ID:       p.ID,
		Name:     p.Name,
		BaseURL:  p.BaseURL,
		Family:   p.Family,
		Priority: p.Priority,
		Weight:   p.Weight,
		Models:   p.Models,
		Enabled:  &enabled,
	}
}

// providersHandler serves the collection endpoint: GET lists, POST adds.
func (a *Application) providersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all := a.registry.All()
		views := make([]providerBody, 0, len(all))
		for _, p := range all {
			views = append(views, providerView(p))
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		var body providerBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid provider body", "invalid_request")
			return
		}
		p := domain.NewProvider(body.ID, body.Name, body.BaseURL, body.Family, body.Priority, body.Weight, body.APIKeys, body.Models)
		if err := a.registry.Add(r.Context(), p); err != nil {
			writeJSONError(w, http.StatusConflict, err.Error(), "provider_exists")
			return
		}
		a.endpoints.Register(p.ID, p.BaseURL)
		writeJSON(w, http.StatusCreated, providerView(p))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// providerByIDHandler serves /providers/:id, /providers/:id/toggle.
func (a *Application) providerByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, constants.PathProviders+"/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if action == "toggle" {
		a.toggleProvider(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, ok := a.registry.Get(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "provider not found", "not_found")
			return
		}
		writeJSON(w, http.StatusOK, providerView(p))
	case http.MethodDelete:
		if err := a.registry.Remove(r.Context(), id); err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error(), "not_found")
			return
		}
		writeAck(w)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Application) toggleProvider(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid toggle body", "invalid_request")
		return
	}
	if err := a.registry.SetEnabled(r.Context(), id, body.Enabled); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error(), "not_found")
		return
	}
	writeAck(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
