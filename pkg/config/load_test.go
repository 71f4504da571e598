package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestPolicyFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, p Policy)
	}{
		{
			name: "origins are trimmed, deduplicated and keep first casing",
			env: map[string]string{
				EnvAllowedOrigins: " https://App.example.com ,, https://app.EXAMPLE.com,https://admin.example.com ",
			},
			check: func(t *testing.T, p Policy) {
				want := []string{"https://App.example.com", "https://admin.example.com"}
				if !reflect.DeepEqual(p.AllowedOrigins, want) {
					t.Errorf("AllowedOrigins = %v, want %v", p.AllowedOrigins, want)
				}
			},
		},
		{
			name: "ALLOWED_ORIGINS wins over CORS_ORIGIN",
			env: map[string]string{
				EnvAllowedOrigins: "https://a.example.com",
				EnvCORSOrigin:     "https://b.example.com",
			},
			check: func(t *testing.T, p Policy) {
				if p.AllowedOrigins[0] != "https://a.example.com" {
					t.Errorf("AllowedOrigins = %v", p.AllowedOrigins)
				}
			},
		},
		{
			name: "CORS_ORIGIN used when ALLOWED_ORIGINS is absent",
			env:  map[string]string{EnvCORSOrigin: "https://b.example.com"},
			check: func(t *testing.T, p Policy) {
				if p.AllowedOrigins[0] != "https://b.example.com" {
					t.Errorf("AllowedOrigins = %v", p.AllowedOrigins)
				}
			},
		},
		{
			name: "credentials truthy values",
			env:  map[string]string{EnvCredentials: "YES"},
			check: func(t *testing.T, p Policy) {
				if !p.AllowCredentials {
					t.Error("AllowCredentials should be true")
				}
			},
		},
		{
			name: "credentials anything else is false",
			env:  map[string]string{EnvCredentials: "nope"},
			check: func(t *testing.T, p Policy) {
				if p.AllowCredentials {
					t.Error("AllowCredentials should be false")
				}
			},
		},
		{
			name: "non-numeric max age keeps default",
			env:  map[string]string{EnvMaxAge: "one day"},
			check: func(t *testing.T, p Policy) {
				if p.MaxAge != DefaultMaxAge {
					t.Errorf("MaxAge = %d, want %d", p.MaxAge, DefaultMaxAge)
				}
			},
		},
		{
			name: "negative max age keeps default",
			env:  map[string]string{EnvMaxAge: "-10"},
			check: func(t *testing.T, p Policy) {
				if p.MaxAge != DefaultMaxAge {
					t.Errorf("MaxAge = %d, want %d", p.MaxAge, DefaultMaxAge)
				}
			},
		},
		{
			name: "development marker",
			env:  map[string]string{EnvNodeEnv: "dev"},
			check: func(t *testing.T, p Policy) {
				if !p.DevelopmentMode {
					t.Error("DevelopmentMode should be true")
				}
			},
		},
		{
			name: "production is not development",
			env:  map[string]string{EnvNodeEnv: "production"},
			check: func(t *testing.T, p Policy) {
				if p.DevelopmentMode {
					t.Error("DevelopmentMode should be false")
				}
			},
		},
		{
			name: "DEBUG fallback key",
			env:  map[string]string{EnvDebug: "1"},
			check: func(t *testing.T, p Policy) {
				if !p.DebugMode {
					t.Error("DebugMode should be true")
				}
			},
		},
		{
			name: "methods and headers from alternate keys",
			env: map[string]string{
				EnvCORSMethods: "get, post",
				EnvCORSHeaders: "X-One, x-one, X-Two",
			},
			check: func(t *testing.T, p Policy) {
				if !reflect.DeepEqual(p.AllowedMethods, []string{"get", "post"}) {
					t.Errorf("AllowedMethods = %v", p.AllowedMethods)
				}
				if !reflect.DeepEqual(p.AllowedHeaders, []string{"X-One", "X-Two"}) {
					t.Errorf("AllowedHeaders = %v", p.AllowedHeaders)
				}
			},
		},
		{
			name: "blank origin list keeps default",
			env:  map[string]string{EnvAllowedOrigins: " , ,"},
			check: func(t *testing.T, p Policy) {
				if !reflect.DeepEqual(p.AllowedOrigins, DefaultPolicy().AllowedOrigins) {
					t.Errorf("AllowedOrigins = %v", p.AllowedOrigins)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PolicyFromEnv(MapLookup(tt.env)).Apply(DefaultPolicy())
			tt.check(t, p)
		})
	}
}

func TestAssemblePolicy_UnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	p, err := AssemblePolicy(MapLookup(map[string]string{EnvMaxAge: "5"}), path)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if p.MaxAge != 5 {
		t.Errorf("MaxAge = %d, want env value 5 despite file error", p.MaxAge)
	}
}

func TestLoadPolicyFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("allowed_origins: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPolicyFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.AdminAddress != DefaultAdminAddress {
		t.Errorf("AdminAddress = %q", cfg.Server.AdminAddress)
	}
	if cfg.Server.RequestTimeout != 5*time.Minute {
		t.Errorf("RequestTimeout = %v, want 5m", cfg.Server.RequestTimeout)
	}
	if cfg.Cache.SweepSchedule != DefaultCacheSweepSchedule {
		t.Errorf("SweepSchedule = %q", cfg.Cache.SweepSchedule)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corsgate.yaml")
	content := `
server:
  listen_address: "0.0.0.0:9000"
  admin_address: ""
  request_timeout: "90s"

policy:
  file: "./cors.yaml"
  watch: true

cache:
  sweep_schedule: "*/5 * * * *"

telemetry:
  logging:
    level: "debug"
    format: "text"
  metrics:
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.AdminAddress != "" {
		t.Errorf("AdminAddress = %q, want disabled", cfg.Server.AdminAddress)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	if !cfg.Policy.Watch || cfg.Policy.File != "./cors.yaml" {
		t.Errorf("Policy = %+v", cfg.Policy)
	}
	if cfg.Policy.Debounce != DefaultPolicyDebounce {
		t.Errorf("Debounce = %v, want default", cfg.Policy.Debounce)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should be disabled")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corsgate.yaml")
	content := `
policy:
  watch: true
cache:
  sweep_schedule: "not a schedule"
telemetry:
  logging:
    level: "verbose"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(verr.Errors), verr)
	}
	if !strings.Contains(err.Error(), "policy.watch") {
		t.Errorf("error should mention policy.watch: %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	env := map[string]string{
		"CORSGATE_LISTEN_ADDRESS":  ":7070",
		"CORSGATE_ADMIN_ADDRESS":   "",
		"CORSGATE_REQUEST_TIMEOUT": "2m",
		"CORSGATE_METRICS_ENABLED": "false",
		EnvLogLevel:                "DEBUG",
	}

	cfg, err := LoadConfigWithEnvOverrides("", MapLookup(env))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != ":7070" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.AdminAddress != "" {
		t.Errorf("AdminAddress = %q, want disabled", cfg.Server.AdminAddress)
	}
	if cfg.Server.RequestTimeout != 2*time.Minute {
		t.Errorf("RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should be disabled")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_LogLevel(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantLevel string
		wantWarn  bool
	}{
		{"uppercase name", map[string]string{EnvLogLevel: "WARN"}, "warn", false},
		{"warning alias", map[string]string{EnvLogLevel: "warning"}, "warn", false},
		{"unknown level keeps default", map[string]string{EnvLogLevel: "TRACE"}, "info", true},
		{"unknown level keeps earlier override", map[string]string{"CORSGATE_LOG_LEVEL": "debug", EnvLogLevel: "verbose"}, "debug", true},
		{"unknown process level", map[string]string{"CORSGATE_LOG_LEVEL": "loud"}, "info", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
			defer slog.SetDefault(prev)

			cfg, err := LoadConfigWithEnvOverrides("", MapLookup(tt.env))
			if err != nil {
				t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
			}
			if cfg.Telemetry.Logging.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Telemetry.Logging.Level, tt.wantLevel)
			}

			warned := strings.Contains(buf.String(), `"level":"WARN"`) &&
				strings.Contains(buf.String(), `"category":"CONFIG_UPDATE"`)
			if warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v; log = %s", warned, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestLoadConfigWithEnvOverrides_Upstream(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		wantErr  bool
	}{
		{"http", "http://127.0.0.1:3000", false},
		{"https with path", "https://app.internal/base", false},
		{"no scheme", "app.internal:3000", true},
		{"unsupported scheme", "ftp://app.internal", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigWithEnvOverrides("", MapLookup(map[string]string{"CORSGATE_UPSTREAM": tt.upstream}))
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "server.upstream") {
					t.Errorf("err = %v, want server.upstream error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Server.Upstream != tt.upstream {
				t.Errorf("Upstream = %q, want %q", cfg.Server.Upstream, tt.upstream)
			}
		})
	}
}

func TestLoadConfig_Tracing(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	tr := cfg.Telemetry.Tracing
	if tr.Enabled || tr.Sampler != "ratio" || tr.SampleRatio != 0.1 || tr.Endpoint != "localhost:4317" || tr.ServiceName != "corsgate" {
		t.Errorf("tracing defaults = %+v", tr)
	}

	env := map[string]string{
		"CORSGATE_TRACING_ENABLED":      "true",
		"CORSGATE_TRACING_ENDPOINT":     "otel-collector:4317",
		"CORSGATE_TRACING_SAMPLE_RATIO": "1.5",
	}
	_, err = LoadConfigWithEnvOverrides("", MapLookup(env))
	if err == nil || !strings.Contains(err.Error(), "telemetry.tracing.sample_ratio") {
		t.Errorf("err = %v, want sample_ratio error", err)
	}

	env["CORSGATE_TRACING_SAMPLE_RATIO"] = "0.5"
	cfg, err = LoadConfigWithEnvOverrides("", MapLookup(env))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Telemetry.Tracing.Enabled || cfg.Telemetry.Tracing.Endpoint != "otel-collector:4317" || cfg.Telemetry.Tracing.SampleRatio != 0.5 {
		t.Errorf("tracing = %+v", cfg.Telemetry.Tracing)
	}
}
