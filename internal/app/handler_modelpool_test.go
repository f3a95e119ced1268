package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelPoolStatusHandlerReturnsOK(t *testing.T) {
	a := testApp(t)
	require.True(t, a.pool.ReserveSlot("p1", "m1"))

	req := httptest.NewRequest(http.MethodGet, "/model-pool/status", nil)
	rec := httptest.NewRecorder()
	a.modelPoolStatusHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestModelPoolResetBreakersHandlerRejectsGet(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest(http.MethodGet, "/model-pool/reset-circuit-breakers", nil)
	rec := httptest.NewRecorder()
	a.modelPoolResetBreakersHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestModelPoolResetBreakersHandlerAcceptsPost(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest(http.MethodPost, "/model-pool/reset-circuit-breakers", nil)
	rec := httptest.NewRecorder()
	a.modelPoolResetBreakersHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointGroupsStatusHandlerReturnsOK(t *testing.T) {
	a := testApp(t)
	a.endpoints.Register("p1", "http://localhost:11434")

	req := httptest.NewRequest(http.MethodGet, "/endpoint-groups/status", nil)
	rec := httptest.NewRecorder()
	a.endpointGroupsStatusHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
