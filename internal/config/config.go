package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/olla-run/olla/internal/util"
)

const (
	DefaultPort = 19841
	DefaultHost = "0.0.0.0"

	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RequestLimits: ServerRequestLimits{
				MaxBodySizeHuman:   "10MB",
				MaxHeaderSizeHuman: "1MB",
			},
			RateLimits: ServerRateLimits{
				GlobalRequestsPerMinute: 1000,
				PerIPRequestsPerMinute:  120,
				BurstSize:               20,
				HealthRequestsPerMinute: 600,
				CleanupInterval:         5 * time.Minute,
				IPExtractionTrustProxy:  false,
			},
		},
		Providers: ProvidersConfig{
			Static: []ProviderConfig{},
		},
		ModelPool: ModelPoolConfig{
			DefaultMaxConcurrent:    4,
			DefaultMaxQueueDepth:    32,
			QueueTimeout:            60 * time.Second,
			QueueTickInterval:       50 * time.Millisecond,
			BreakerFailureThreshold: 5,
			BreakerCooldown:         30 * time.Second,
			QueueWarnThreshold:      0.7,
			QueueCriticalThreshold:  0.9,
		},
		ModelSelector: ModelSelectorConfig{
			EnableProactiveFailover:       true,
			EnableHealthBasedRouting:      true,
			EnablePerformanceBasedRouting: true,
			PreferHealthyModels:           true,
			MaxParallelAlternatives:       2,
			ScoreWeights: ScoreWeightsConfig{
				Capacity:    0.4,
				Health:      0.3,
				Performance: 0.2,
				Priority:    0.1,
			},
		},
		EndpointRateLimiting: EndpointRateLimitingConfig{
			DefaultMaxConcurrent: 16,
			Strategy:             "priority",
		},
		Router: RouterConfig{
			BackgroundModelSuffixes:   []string{"-background", "-batch"},
			ThinkModelSuffixes:        []string{"-think", "-reasoning"},
			LongContextTokenThreshold: 32000,
		},
		Failover: FailoverConfig{
			MaxAttempts: 3,
		},
		Streaming: StreamingConfig{
			HeartbeatInterval:       15 * time.Second,
			ReadTimeout:             120 * time.Second,
			DisconnectByteThreshold: 0,
			DisconnectTimeThreshold: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FileOutput: false,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Theme:      "default",
			PrettyLogs: true,
		},
		Engineering: EngineeringConfig{
			ShowNerdStats:  false,
			EnableProfiler: false,
		},
	}
}

// Load loads configuration from file and environment variables, resolving
// human-readable size strings into byte counts via docker/go-units.
func Load(onConfigChange func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("OLLA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("OLLA_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := resolveSizes(config); err != nil {
		return nil, err
	}

	if err := resolveTrustedCIDRs(config); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // Ignore multiple rapid changes
			}
			lastReload = now

			// looks like on windows this event is triggered
			// before the file is fully written, not sure why
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return config, nil
}

// resolveSizes parses the human-readable request limit strings into byte
// counts. Called by Load after decoding; the file-change callback does not
// re-run it.
func resolveSizes(c *Config) error {
	if c.Server.RequestLimits.MaxBodySizeHuman != "" {
		size, err := units.FromHumanSize(c.Server.RequestLimits.MaxBodySizeHuman)
		if err != nil {
			return fmt.Errorf("invalid server.request_limits.max_body_size %q: %w", c.Server.RequestLimits.MaxBodySizeHuman, err)
		}
		c.Server.RequestLimits.MaxBodySize = size
	}
	if c.Server.RequestLimits.MaxHeaderSizeHuman != "" {
		size, err := units.FromHumanSize(c.Server.RequestLimits.MaxHeaderSizeHuman)
		if err != nil {
			return fmt.Errorf("invalid server.request_limits.max_header_size %q: %w", c.Server.RequestLimits.MaxHeaderSizeHuman, err)
		}
		c.Server.RequestLimits.MaxHeaderSize = size
	}
	return nil
}

// resolveTrustedCIDRs parses the configured proxy-trust CIDR blocks once at
// load time so the rate limiter never re-parses them on the request path.
func resolveTrustedCIDRs(c *Config) error {
	cidrs, err := util.ParseTrustedCIDRs(c.Server.RateLimits.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("invalid server.rate_limits.trusted_proxy_cidrs: %w", err)
	}
	c.Server.RateLimits.TrustedProxyCIDRsParsed = cidrs
	return nil
}
