package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olla-run/olla/internal/core/ports"
)

func TestMetricsHandlerReturnsAggregate(t *testing.T) {
	a := testApp(t)
	a.metricsCol.RecordRequest(ports.RequestRecord{
		ProviderID: "p1",
		Model:      "llama3",
		StatusCode: http.StatusOK,
		Latency:    10 * time.Millisecond,
		StartTime:  time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.metricsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}

func TestMetricsRecentHandlerRespectsLimit(t *testing.T) {
	a := testApp(t)
	for i := 0; i < 5; i++ {
		a.metricsCol.RecordRequest(ports.RequestRecord{ProviderID: "p1", StartTime: time.Now()})
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics/recent?limit=2", nil)
	rec := httptest.NewRecorder()
	a.metricsRecentHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
