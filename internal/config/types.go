package config

import (
	"net"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Logging              LoggingConfig              `yaml:"logging"`
	Server               ServerConfig               `yaml:"server"`
	Providers            ProvidersConfig            `yaml:"providers"`
	ModelPool            ModelPoolConfig            `yaml:"model_pool"`
	ModelSelector        ModelSelectorConfig        `yaml:"model_selector"`
	EndpointRateLimiting EndpointRateLimitingConfig `yaml:"endpoint_rate_limiting"`
	Router               RouterConfig               `yaml:"router"`
	Failover             FailoverConfig             `yaml:"failover"`
	Streaming            StreamingConfig            `yaml:"streaming"`
	Engineering          EngineeringConfig          `yaml:"engineering"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string              `yaml:"host"`
	Port            int                 `yaml:"port"`
	ReadTimeout     time.Duration       `yaml:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	RequestLimits   ServerRequestLimits `yaml:"request_limits"`
	RateLimits      ServerRateLimits    `yaml:"rate_limits"`
}

// ServerRequestLimits defines request size and validation limits. Sizes
// are configured as human-readable strings ("10MB") and parsed with
// docker/go-units into the byte counts below during Load.
type ServerRequestLimits struct {
	MaxBodySizeHuman   string `yaml:"max_body_size"`
	MaxHeaderSizeHuman string `yaml:"max_header_size"`

	MaxBodySize   int64 `yaml:"-"`
	MaxHeaderSize int64 `yaml:"-"`
}

// ServerRateLimits defines ingress rate limiting configuration, enforced
// ahead of (and independently from) the ModelPool's own per-slot limits.
type ServerRateLimits struct {
	GlobalRequestsPerMinute int           `yaml:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int           `yaml:"per_ip_requests_per_minute"`
	BurstSize               int           `yaml:"burst_size"`
	HealthRequestsPerMinute int           `yaml:"health_requests_per_minute"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	IPExtractionTrustProxy  bool          `yaml:"ip_extraction_trust_proxy"`
	TrustedProxyCIDRs       []string      `yaml:"trusted_proxy_cidrs"`
	TrustedProxyCIDRsParsed []*net.IPNet  `yaml:"-"`
}

// ProvidersConfig lists statically configured upstream providers.
type ProvidersConfig struct {
	Static []ProviderConfig `yaml:"static"`
}

// ProviderConfig describes one configured upstream provider.
type ProviderConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	BaseURL  string   `yaml:"base_url"`
	Family   string   `yaml:"family"` // openai | anthropic | iflow | custom
	Priority int      `yaml:"priority"`
	Weight   float64  `yaml:"weight"`
	APIKeys  []string `yaml:"api_keys"`
	Models   []string `yaml:"models"`

	// CustomHeaders is applied in list order so later entries win on a
	// case-insensitive key collision.
	CustomHeaders []ProviderHeaderConfig `yaml:"custom_headers"`
	Signer        *ProviderSignerConfig  `yaml:"signer"`
}

type ProviderHeaderConfig struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ProviderSignerConfig configures the optional per-family HMAC-SHA256
// request signer (spec'd header builder behaviour): sign a handful of
// already-built header fields plus a timestamp, using the provider's API
// key as the HMAC secret.
type ProviderSignerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	HeaderFields    []string `yaml:"header_fields"`
	SignatureHeader string   `yaml:"signature_header"`
	TimestampHeader string   `yaml:"timestamp_header"`
}

// ModelPoolConfig configures per-(provider,model) capacity, queueing and
// circuit-breaker behaviour.
type ModelPoolConfig struct {
	DefaultMaxConcurrent    int64         `yaml:"default_max_concurrent"`
	DefaultMaxQueueDepth    int64         `yaml:"default_max_queue_depth"`
	QueueTimeout            time.Duration `yaml:"queue_timeout"`
	QueueTickInterval       time.Duration `yaml:"queue_tick_interval"`
	BreakerFailureThreshold int64         `yaml:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `yaml:"breaker_cooldown"`
	QueueWarnThreshold      float64       `yaml:"queue_warn_threshold"`
	QueueCriticalThreshold  float64       `yaml:"queue_critical_threshold"`
}

// ModelSelectorConfig configures the weighted candidate-scoring formula
// and the racing gate described for the core ModelSelector.
type ModelSelectorConfig struct {
	EnableProactiveFailover       bool `yaml:"enable_proactive_failover"`
	EnableHealthBasedRouting      bool `yaml:"enable_health_based_routing"`
	EnablePerformanceBasedRouting bool `yaml:"enable_performance_based_routing"`
	PreferHealthyModels           bool `yaml:"prefer_healthy_models"`
	MaxParallelAlternatives       int  `yaml:"max_parallel_alternatives"`

	ScoreWeights ScoreWeightsConfig `yaml:"score_weights"`
}

// ScoreWeightsConfig weights the four score components of the candidate
// formula; the weights are expected to sum to 1.
type ScoreWeightsConfig struct {
	Capacity    float64 `yaml:"capacity"`
	Health      float64 `yaml:"health"`
	Performance float64 `yaml:"performance"`
	Priority    float64 `yaml:"priority"`
}

// EndpointRateLimitingConfig configures per-endpoint-group capacity and
// which balancer.Factory strategy spreads load across a provider's
// routable endpoints.
type EndpointRateLimitingConfig struct {
	DefaultMaxConcurrent int64  `yaml:"default_max_concurrent"`
	Strategy             string `yaml:"strategy"` // priority | round-robin | least-connections
}

// RouterConfig configures scenario classification and, for custom-model
// requests, the "provider,model" routing key each scenario resolves to.
type RouterConfig struct {
	BackgroundModelSuffixes   []string `yaml:"background_model_suffixes"`
	ThinkModelSuffixes        []string `yaml:"think_model_suffixes"`
	LongContextTokenThreshold int      `yaml:"long_context_token_threshold"`

	Default     string `yaml:"default"`
	Background  string `yaml:"background"`
	Think       string `yaml:"think"`
	LongContext string `yaml:"long_context"`
	WebSearch   string `yaml:"web_search"`
	// Image is accepted for forward compatibility with an image-generation
	// scenario; Router.Classify never produces it today.
	Image string `yaml:"image"`
}

// FailoverConfig configures how many alternatives the planner will try.
type FailoverConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// StreamingConfig configures the SSE stream manager.
type StreamingConfig struct {
	HeartbeatInterval       time.Duration `yaml:"heartbeat_interval"`
	ReadTimeout             time.Duration `yaml:"read_timeout"`
	DisconnectByteThreshold int           `yaml:"disconnect_byte_threshold"`
	DisconnectTimeThreshold time.Duration `yaml:"disconnect_time_threshold"`
	BackpressureTimeout     time.Duration `yaml:"backpressure_timeout"`

	EnableStaggeredDetection bool          `yaml:"enable_staggered_detection"`
	MaxInterChunkDelay       time.Duration `yaml:"max_inter_chunk_delay"`
	MinTokenRate             float64       `yaml:"min_token_rate"`

	MaxStreamRetries int `yaml:"max_stream_retries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	FileOutput bool   `yaml:"file_output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Theme      string `yaml:"theme"`
	PrettyLogs bool   `yaml:"pretty_logs"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats  bool   `yaml:"show_nerdstats"`
	EnableProfiler bool   `yaml:"enable_profiler"`
	ProfilerAddr   string `yaml:"profiler_addr"`
}
