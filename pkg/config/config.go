package config

import "time"

// Config is the root process configuration for corsgate. The CORS policy
// itself is not part of it; see Policy and Store.
type Config struct {
	// Server contains listener addresses and timeouts.
	Server ServerConfig `yaml:"server"`

	// Policy describes where the CORS policy is read from besides the
	// environment, and whether it is hot-reloaded.
	Policy PolicySourceConfig `yaml:"policy"`

	// Cache contains origin decision cache maintenance settings.
	Cache CacheConfig `yaml:"cache"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP listeners.
type ServerConfig struct {
	// ListenAddress is the address of the public listener.
	// Default: ":8080"
	ListenAddress string `yaml:"listen_address"`

	// AdminAddress is the address of the admin API and /metrics listener.
	// An empty value disables the admin listener.
	// Default: "127.0.0.1:9091"
	AdminAddress string `yaml:"admin_address"`

	// ReadTimeout is the maximum duration for reading an entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout is the per-request deadline enforced by the timeout
	// guard. Requests still running after it receive a 504.
	// Default: 5m
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Upstream is the absolute http(s) URL of the application behind the
	// gate. Accepted requests are reverse-proxied to it. When empty, every
	// accepted request that reaches the application gets a 404.
	Upstream string `yaml:"upstream"`
}

// PolicySourceConfig contains configuration for loading the CORS policy.
type PolicySourceConfig struct {
	// File is an optional YAML policy file layered under the environment.
	File string `yaml:"file"`

	// Watch enables hot reload of File on change.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period before a file change triggers a reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// HistoryPath is the SQLite file recording policy changes.
	// An empty value disables history.
	HistoryPath string `yaml:"history_path"`
}

// CacheConfig contains origin cache maintenance configuration.
type CacheConfig struct {
	// SweepSchedule is a cron spec for purging expired cache entries.
	// An empty value disables the sweeper; expired entries are then only
	// removed lazily on lookup.
	// Default: "@every 10m"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains diagnostic log configuration.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "corsgate"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether request spans are recorded and exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service.name resource attribute.
	// Default: "corsgate"
	ServiceName string `yaml:"service_name"`
}
