package config

import "time"

// Default values for the CORS policy.
const (
	DefaultMaxAge           = 86400 // 24 hours
	DefaultAllowCredentials = true
	DefaultDevelopmentMode  = false
	DefaultDebugMode        = false
)

// Default values for process configuration.
const (
	// Server defaults
	DefaultListenAddress   = ":8080"
	DefaultAdminAddress    = "127.0.0.1:9091"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 5 * time.Minute

	// Policy source defaults
	DefaultPolicyWatch    = false
	DefaultPolicyDebounce = 100 * time.Millisecond

	// Cache defaults
	DefaultCacheSweepSchedule = "@every 10m"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsNamespace = "corsgate"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingService   = "corsgate"
)

var (
	defaultAllowedOrigins = []string{"http://localhost:3000"}
	defaultAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultAllowedHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}
)

// DefaultPolicy returns the hardcoded policy used when nothing is configured
// or when the configured policy fails validation.
func DefaultPolicy() Policy {
	return Policy{
		AllowedOrigins:   cloneStrings(defaultAllowedOrigins),
		AllowedMethods:   cloneStrings(defaultAllowedMethods),
		AllowedHeaders:   cloneStrings(defaultAllowedHeaders),
		AllowCredentials: DefaultAllowCredentials,
		MaxAge:           DefaultMaxAge,
		DevelopmentMode:  DefaultDevelopmentMode,
		DebugMode:        DefaultDebugMode,
	}
}

// ApplyDefaults fills unset process configuration fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.Policy.Debounce == 0 {
		cfg.Policy.Debounce = DefaultPolicyDebounce
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}

	tr := &cfg.Telemetry.Tracing
	if tr.Sampler == "" {
		tr.Sampler = DefaultTracingSampler
		if tr.SampleRatio == 0 {
			tr.SampleRatio = DefaultTracingRatio
		}
	}
	if tr.Endpoint == "" {
		tr.Endpoint = DefaultTracingEndpoint
	}
	if tr.Timeout == 0 {
		tr.Timeout = DefaultTracingTimeout
	}
	if tr.ServiceName == "" {
		tr.ServiceName = DefaultTracingService
	}
}

// NewDefaultConfig returns a process configuration with every default
// applied. AdminAddress, SweepSchedule and Metrics.Enabled are set here rather
// than in ApplyDefaults because an explicit empty/false value disables them.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			AdminAddress: DefaultAdminAddress,
		},
		Policy: PolicySourceConfig{
			Watch: DefaultPolicyWatch,
		},
		Cache: CacheConfig{
			SweepSchedule: DefaultCacheSweepSchedule,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
