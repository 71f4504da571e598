package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mercator-hq/corsgate/pkg/telemetry/logging"

	"gopkg.in/yaml.v3"
)

// LoadPolicyFile reads a YAML policy file into a partial policy. Fields the
// file does not mention stay nil.
func LoadPolicyFile(path string) (PolicyUpdate, error) {
	var u PolicyUpdate

	data, err := os.ReadFile(path)
	if err != nil {
		return u, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &u); err != nil {
		return PolicyUpdate{}, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}
	if u.AllowedOrigins != nil {
		u.AllowedOrigins = dedupeFold(u.AllowedOrigins)
	}
	return u, nil
}

// AssemblePolicy builds a candidate policy from its sources without
// validating it. Precedence, later overriding earlier:
//
//  1. DefaultPolicy
//  2. the YAML policy file (if path is not empty)
//  3. environment keys read through lookup
//
// A file that cannot be read or parsed is skipped and reported through the
// returned error; the candidate is still assembled from the other sources.
func AssemblePolicy(lookup LookupFunc, path string) (Policy, error) {
	candidate := DefaultPolicy()

	var fileErr error
	if path != "" {
		fromFile, err := LoadPolicyFile(path)
		if err != nil {
			fileErr = err
		} else {
			candidate = fromFile.Apply(candidate)
		}
	}

	if lookup != nil {
		candidate = PolicyFromEnv(lookup).Apply(candidate)
	}

	return candidate, fileErr
}

// LoadConfig loads process configuration from a YAML file. An empty path
// yields the defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads process configuration and applies
// CORSGATE_* environment overrides. CORS_LOG_LEVEL overrides the log level.
//
// The loading sequence is:
//  1. Default values
//  2. YAML file (if path is not empty)
//  3. Environment variable overrides
//  4. Validation
func LoadConfigWithEnvOverrides(path string, lookup LookupFunc) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg, lookup)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config, lookup LookupFunc) {
	if lookup == nil {
		return
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	// Server overrides
	if val, ok := get("CORSGATE_LISTEN_ADDRESS"); ok {
		cfg.Server.ListenAddress = val
	}
	if val, ok := lookup("CORSGATE_ADMIN_ADDRESS"); ok {
		// Empty is meaningful here: it disables the admin listener.
		cfg.Server.AdminAddress = val
	}
	if val, ok := get("CORSGATE_REQUEST_TIMEOUT"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}
	if val, ok := get("CORSGATE_UPSTREAM"); ok {
		cfg.Server.Upstream = val
	}
	if val, ok := get("CORSGATE_SHUTDOWN_TIMEOUT"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Policy source overrides
	if val, ok := get("CORSGATE_POLICY_FILE"); ok {
		cfg.Policy.File = val
	}
	if val, ok := get("CORSGATE_POLICY_WATCH"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}
	if val, ok := get("CORSGATE_HISTORY_PATH"); ok {
		cfg.Policy.HistoryPath = val
	}

	// Cache overrides
	if val, ok := lookup("CORSGATE_CACHE_SWEEP_SCHEDULE"); ok {
		cfg.Cache.SweepSchedule = val
	}

	// Telemetry overrides
	if val, ok := get("CORSGATE_LOG_LEVEL"); ok {
		overrideLogLevel(cfg, "CORSGATE_LOG_LEVEL", val)
	}
	if val, ok := get(EnvLogLevel); ok {
		overrideLogLevel(cfg, EnvLogLevel, val)
	}
	if val, ok := get("CORSGATE_LOG_FORMAT"); ok {
		cfg.Telemetry.Logging.Format = val
	}
	if val, ok := get("CORSGATE_METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val, ok := get("CORSGATE_TRACING_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val, ok := get("CORSGATE_TRACING_ENDPOINT"); ok {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val, ok := get("CORSGATE_TRACING_SAMPLE_RATIO"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// overrideLogLevel applies a log level from the environment. An unknown
// level keeps the configured one and is reported as a rejected update.
func overrideLogLevel(cfg *Config, key, val string) {
	level, err := logging.ParseLevel(val)
	if err != nil {
		logging.Default().ConfigUpdate(logging.ConfigRejected, logging.Fields{
			"key":   key,
			"value": val,
			"level": cfg.Telemetry.Logging.Level,
			"error": err.Error(),
		})
		return
	}
	cfg.Telemetry.Logging.Level = strings.ToLower(level.String())
}

func dedupeFold(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
