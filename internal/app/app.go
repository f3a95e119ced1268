// Package app wires the dispatch engine's collaborators together and
// exposes them over HTTP: config load, provider registry population,
// the pool/endpoint-group/selector/scenario/transform/header/classify/
// sse/metrics/eventbus stack, and finally the dispatcher itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/docker/go-units"

	"github.com/olla-run/olla/internal/adapter/balancer"
	"github.com/olla-run/olla/internal/adapter/classify"
	"github.com/olla-run/olla/internal/adapter/dispatcher"
	"github.com/olla-run/olla/internal/adapter/endpointgroup"
	"github.com/olla-run/olla/internal/adapter/header"
	"github.com/olla-run/olla/internal/adapter/metrics"
	"github.com/olla-run/olla/internal/adapter/modelpool"
	"github.com/olla-run/olla/internal/adapter/registry"
	"github.com/olla-run/olla/internal/adapter/scenario"
	"github.com/olla-run/olla/internal/adapter/selector"
	"github.com/olla-run/olla/internal/adapter/sse"
	"github.com/olla-run/olla/internal/adapter/transform"
	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
	"github.com/olla-run/olla/internal/logger"
	"github.com/olla-run/olla/internal/router"
	"github.com/olla-run/olla/pkg/eventbus"
	"github.com/olla-run/olla/pkg/profiler"
)

// Application owns the HTTP server and every collaborator the
// dispatcher depends on, plus the admin surface over them.
type Application struct {
	cfg    *config.Config
	server *http.Server
	logger *logger.StyledLogger
	startTime time.Time

	registry      *registry.Registry
	pool          *modelpool.Pool
	endpoints     *endpointgroup.Manager
	metricsCol    *metrics.Collector
	events        *eventbus.EventBus[domain.DispatchEvent]
	dispatch      ports.Dispatcher
	router        *scenario.Router
	sizeLimiter   *RequestSizeLimiter
	rateLimiter   *RateLimiter
	routeRegistry *router.RouteRegistry

	errCh chan error
}

// New loads configuration, builds every collaborator and wires the
// dispatcher. Config is loaded once: config.Load is called without a
// change callback, so edits to the config file are not applied to a
// running server.
func New(startTime time.Time, log *logger.StyledLogger) (*Application, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &Application{
		cfg:       cfg,
		logger:    log,
		startTime: startTime,
		errCh:     make(chan error, 1),
	}

	if err := a.buildCollaborators(); err != nil {
		return nil, err
	}

	if cfg.Engineering.EnableProfiler {
		profiler.InitialiseProfiler(cfg.Engineering.ProfilerAddr)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

func (a *Application) buildCollaborators() error {
	cfg := a.cfg

	a.registry = registry.New()
	a.pool = modelpool.New(cfg.ModelPool, a.logger)

	strategyFactory := balancer.NewFactory()
	strategy, err := strategyFactory.Create(cfg.EndpointRateLimiting.Strategy)
	if err != nil {
		return fmt.Errorf("building endpoint balancer strategy %q: %w", cfg.EndpointRateLimiting.Strategy, err)
	}
	a.endpoints = endpointgroup.New(cfg.EndpointRateLimiting, strategy, a.logger)

	for _, pc := range cfg.Providers.Static {
		p := providerFromConfig(pc)
		if err := a.registry.Add(context.Background(), p); err != nil {
			return fmt.Errorf("registering provider %q: %w", pc.ID, err)
		}
		a.endpoints.Register(p.ID, p.BaseURL)
	}

	a.metricsCol = metrics.New()
	a.events = eventbus.New[domain.DispatchEvent]()
	a.router = scenario.NewRouter(cfg.Router)

	a.dispatch = dispatcher.New(dispatcher.Deps{
		Pool:         a.pool,
		Endpoints:    a.endpoints,
		Selector:     selector.New(cfg.ModelSelector, a.pool),
		Transformers: transform.New(),
		Classifier:   classify.New(),
		Streams:      sse.New(a.logger),
		Registry:     a.registry,
		Headers:      header.NewBuilder(),
		Metrics:      a.metricsCol,
		Failover:     scenario.NewPlanner(cfg.Failover),
		Router:       a.router,
		StreamOpts: ports.StreamOptions{
			HeartbeatInterval:        cfg.Streaming.HeartbeatInterval,
			ReadTimeout:              cfg.Streaming.ReadTimeout,
			DisconnectByteThreshold:  cfg.Streaming.DisconnectByteThreshold,
			DisconnectTimeThreshold:  cfg.Streaming.DisconnectTimeThreshold,
			BackpressureTimeout:      cfg.Streaming.BackpressureTimeout,
			EnableStaggeredDetection: cfg.Streaming.EnableStaggeredDetection,
			MaxInterChunkDelay:       cfg.Streaming.MaxInterChunkDelay,
			MinTokenRate:             cfg.Streaming.MinTokenRate,
			MaxRetries:               cfg.Streaming.MaxStreamRetries,
		},
		Events: a.events,
		Log:    a.logger,
	})

	a.sizeLimiter = NewRequestSizeLimiter(cfg.Server.RequestLimits, a.logger)
	a.rateLimiter = NewRateLimiter(cfg.Server.RateLimits, a.logger)
	a.routeRegistry = router.NewRouteRegistry(*a.logger)

	return nil
}

// providerFromConfig converts a config.ProviderConfig into the live
// domain.Provider the registry/endpoint-group/dispatcher operate on.
func providerFromConfig(pc config.ProviderConfig) *domain.Provider {
	p := domain.NewProvider(pc.ID, pc.Name, pc.BaseURL, pc.Family, pc.Priority, pc.Weight, pc.APIKeys, pc.Models)
	for _, h := range pc.CustomHeaders {
		p.CustomHeaders = append(p.CustomHeaders, domain.HeaderKV{Key: h.Key, Value: h.Value})
	}
	if pc.Signer != nil {
		p.Signer = &domain.SignerConfig{
			Enabled:         pc.Signer.Enabled,
			HeaderFields:    pc.Signer.HeaderFields,
			SignatureHeader: pc.Signer.SignatureHeader,
			TimestampHeader: pc.Signer.TimestampHeader,
		}
	}
	return p
}

// Start wires the routes and begins serving. It returns once the
// listener goroutine has been launched; startup failures arrive async
// on errCh and are logged, matching the teacher's non-blocking Start.
func (a *Application) Start(ctx context.Context) error {
	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("Server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	a.startWebServer()

	a.logger.Info("Olla router started", "bind", a.server.Addr)
	return nil
}

// Stop drains the HTTP server and releases background goroutines owned
// by the collaborators (model pool's queue ticker, metrics sweeper,
// event bus workers).
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.rateLimiter.Stop()
	a.pool.Close()
	a.metricsCol.Close()
	a.events.Shutdown()

	if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

// ShowNerdStats reports whether the engineering config asked for the
// shutdown memory/GC/goroutine report main.go prints after Stop.
func (a *Application) ShowNerdStats() bool {
	return a.cfg.Engineering.ShowNerdStats
}

func humanSize(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return units.HumanSize(float64(n))
}
