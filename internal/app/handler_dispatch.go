package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// dispatchHandler serves both /v1/messages and /v1/chat/completions: it
// builds a RequestContext from the inbound dialect-native body and
// hands off to the dispatcher, which writes the response (buffered or
// streamed) directly to w.
func (a *Application) dispatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc, err := buildRequestContext(r, a.router)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body", "invalid_request")
		return
	}
	defer r.Body.Close()

	decision, dispatchErr := a.dispatch.Dispatch(r.Context(), w, rc)
	if decision != nil {
		w.Header().Set(constants.HeaderRoutingReason, decision.Reason)
		w.Header().Set(constants.HeaderRoutingProvider, decision.ProviderID)
	}

	if dispatchErr == nil {
		return
	}

	status, code := classifyDispatchError(dispatchErr)
	a.logger.WithRequestID(rc.RequestID).Warn("dispatch failed", "status", status, "code", code, "err", dispatchErr)
	writeJSONError(w, status, dispatchErr.Error(), code)
}

func classifyDispatchError(err error) (int, string) {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr.HTTPStatus(), string(perr.Kind)
	}
	var derr *domain.DispatchError
	if errors.As(err, &derr) {
		return derr.StatusCode, derr.Reason
	}
	return http.StatusInternalServerError, "unknown"
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}
