package app

import (
	"log/slog"
	"testing"

	"github.com/olla-run/olla/internal/adapter/balancer"
	"github.com/olla-run/olla/internal/adapter/endpointgroup"
	"github.com/olla-run/olla/internal/adapter/metrics"
	"github.com/olla-run/olla/internal/adapter/modelpool"
	"github.com/olla-run/olla/internal/adapter/registry"
	"github.com/olla-run/olla/internal/adapter/scenario"
	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/logger"
	"github.com/olla-run/olla/theme"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// testApp builds an Application with real, lightweight collaborators
// (no HTTP server, no dispatcher) so handler methods can be exercised
// directly without standing up the full dispatch engine.
func testApp(t *testing.T) *Application {
	t.Helper()
	log := logger.NewStyledLogger(slog.New(slog.NewTextHandler(discard{}, nil)), theme.Default())

	cfg := config.DefaultConfig()

	strategy, err := balancer.NewFactory().Create(cfg.EndpointRateLimiting.Strategy)
	if err != nil {
		t.Fatalf("building balancer strategy: %v", err)
	}

	a := &Application{
		cfg:        cfg,
		logger:     log,
		registry:   registry.New(),
		pool:       modelpool.New(cfg.ModelPool, log),
		endpoints:  endpointgroup.New(cfg.EndpointRateLimiting, strategy, log),
		metricsCol: metrics.New(),
		router:     scenario.NewRouter(cfg.Router),
		errCh:      make(chan error, 1),
	}
	t.Cleanup(func() {
		a.pool.Close()
		a.metricsCol.Close()
	})
	return a
}
