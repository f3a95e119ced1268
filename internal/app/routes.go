package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/olla-run/olla/internal/core/constants"
)

func (a *Application) startWebServer() {
	cfg := a.cfg.Server

	a.logger.Info("Starting Olla router...", "host", cfg.Host, "port", cfg.Port,
		"read_timeout", cfg.ReadTimeout, "write_timeout", cfg.WriteTimeout)

	if cfg.RequestLimits.MaxBodySize > 0 || cfg.RequestLimits.MaxHeaderSize > 0 {
		a.logger.Info("Request size limits enabled",
			"max_body_size", humanSize(cfg.RequestLimits.MaxBodySize),
			"max_header_size", humanSize(cfg.RequestLimits.MaxHeaderSize))
	}

	if cfg.RateLimits.GlobalRequestsPerMinute > 0 || cfg.RateLimits.PerIPRequestsPerMinute > 0 {
		a.logger.Info("Rate limiting enabled",
			"global_limit", cfg.RateLimits.GlobalRequestsPerMinute,
			"per_ip_limit", cfg.RateLimits.PerIPRequestsPerMinute,
			"burst_size", cfg.RateLimits.BurstSize,
			"health_limit", cfg.RateLimits.HealthRequestsPerMinute)
	}

	if len(cfg.RateLimits.TrustedProxyCIDRs) > 0 {
		a.logger.Info("Configured trusted proxy CIDRs", "cidrs", strings.Join(cfg.RateLimits.TrustedProxyCIDRs, ", "))
	}

	mux := http.NewServeMux()
	a.registerRoutes()
	a.routeRegistry.WireUpWithMiddleware(mux, a.sizeLimiter, a.rateLimiter)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	a.server.Handler = mux
	a.logger.Info("Started Olla router", "bind", a.server.Addr)
}

func (a *Application) registerRoutes() {
	a.routeRegistry.RegisterProxyRoute(constants.PathV1Messages, a.dispatchHandler, "Anthropic-dialect chat completion", "POST")
	a.routeRegistry.RegisterProxyRoute(constants.PathV1ChatCompletions, a.dispatchHandler, "OpenAI-dialect chat completion", "POST")
	a.routeRegistry.RegisterWithMethod(constants.PathV1Models, a.modelsHandler, "Unified model listing", "GET")

	a.routeRegistry.Register(constants.DefaultHealthEndpoint, a.healthHandler, "Health check")
	a.routeRegistry.Register(constants.DefaultMetricsPath, a.metricsHandler, "Aggregated dispatch metrics")
	a.routeRegistry.Register(constants.PathMetricsRecent, a.metricsRecentHandler, "Most recent request records")

	a.routeRegistry.Register(constants.PathModelPoolStatus, a.modelPoolStatusHandler, "Model pool slot status")
	a.routeRegistry.Register(constants.PathModelPoolQueue, a.modelPoolQueueHandler, "Model pool queue depth")
	a.routeRegistry.Register(constants.PathModelPoolConfig, a.modelPoolConfigHandler, "Model pool configuration")
	a.routeRegistry.RegisterWithMethod(constants.PathModelPoolResetBreakers, a.modelPoolResetBreakersHandler, "Reset model pool circuit breakers", "POST")
	a.routeRegistry.RegisterWithMethod(constants.PathModelPoolClearQueue, a.modelPoolClearQueueHandler, "Clear model pool queues", "POST")

	a.routeRegistry.Register(constants.PathEndpointGroups+"/status", a.endpointGroupsStatusHandler, "Endpoint group slot status")
	a.routeRegistry.RegisterWithMethod(constants.PathEndpointGroups+"/reset-circuit-breakers", a.endpointGroupsResetBreakersHandler, "Reset endpoint group circuit breakers", "POST")

	a.routeRegistry.Register(constants.PathProviders, a.providersHandler, "Provider registry CRUD")
	a.routeRegistry.Register(constants.PathProviders+"/", a.providerByIDHandler, "Provider get/delete/toggle")
}

// loggingMiddleware mirrors the teacher's request logger shape; it is
// not wired by default (RateLimiter/RequestSizeLimiter already log
// rejections) but is kept available for an operator who wants
// per-request access logs.
func (a *Application) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"content_length", r.ContentLength,
			"user_agent", r.UserAgent())
		next.ServeHTTP(w, r)
	})
}
