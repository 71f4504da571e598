package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/net/http/httpguts"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the name of the offending field (e.g., "maxAge" or
	// "server.listen_address").
	Field string `json:"field"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Value is the rejected value, if any.
	Value any `json:"value,omitempty"`
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidatePolicy checks a candidate policy and returns every violation it
// finds. An empty result means the policy may be published. ValidatePolicy
// never panics and never modifies p.
func ValidatePolicy(p Policy) []FieldError {
	var errs []FieldError

	if len(p.AllowedOrigins) == 0 {
		errs = append(errs, FieldError{
			Field:   "allowedOrigins",
			Message: "at least one allowed origin is required",
			Value:   cloneStrings(p.AllowedOrigins),
		})
	}
	for _, origin := range p.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, FieldError{
				Field:   "allowedOrigins",
				Message: "origin must start with http:// or https://",
				Value:   origin,
			})
		}
	}

	if len(p.AllowedMethods) == 0 {
		errs = append(errs, FieldError{
			Field:   "allowedMethods",
			Message: "at least one allowed method is required",
			Value:   cloneStrings(p.AllowedMethods),
		})
	}
	for _, method := range p.AllowedMethods {
		// Methods and field names share the RFC 9110 token grammar.
		if !httpguts.ValidHeaderFieldName(method) {
			errs = append(errs, FieldError{
				Field:   "allowedMethods",
				Message: "method must be a valid HTTP token",
				Value:   method,
			})
		}
	}

	if len(p.AllowedHeaders) == 0 {
		errs = append(errs, FieldError{
			Field:   "allowedHeaders",
			Message: "at least one allowed header is required",
			Value:   cloneStrings(p.AllowedHeaders),
		})
	}
	for _, header := range p.AllowedHeaders {
		if !httpguts.ValidHeaderFieldName(header) {
			errs = append(errs, FieldError{
				Field:   "allowedHeaders",
				Message: "header must be a valid HTTP field name",
				Value:   header,
			})
		}
	}

	if p.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "maxAge",
			Message: "max age must be a non-negative number of seconds",
			Value:   p.MaxAge,
		})
	}

	return errs
}

// Validate validates the process configuration and returns a ValidationError
// if any rule fails.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicySource(&cfg.Policy)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.AdminAddress != "" && cfg.AdminAddress == cfg.ListenAddress {
		errs = append(errs, FieldError{
			Field:   "server.admin_address",
			Message: "admin address must differ from listen address",
			Value:   cfg.AdminAddress,
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.request_timeout",
			Message: "request timeout must be positive",
			Value:   cfg.RequestTimeout.String(),
		})
	}
	if cfg.Upstream != "" {
		u, err := url.Parse(cfg.Upstream)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "server.upstream",
				Message: "upstream must be an absolute http or https URL",
				Value:   cfg.Upstream,
			})
		}
	}

	return errs
}

func validatePolicySource(cfg *PolicySourceConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.File == "" {
		errs = append(errs, FieldError{
			Field:   "policy.watch",
			Message: "watch requires policy.file to be set",
		})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.debounce",
			Message: "debounce must be positive",
		})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	if cfg.SweepSchedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return []FieldError{{
			Field:   "cache.sweep_schedule",
			Message: fmt.Sprintf("invalid cron schedule: %v", err),
			Value:   cfg.SweepSchedule,
		}}
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "level must be one of debug, info, warn, error",
			Value:   cfg.Logging.Level,
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "format must be json or text",
			Value:   cfg.Logging.Format,
		})
	}

	switch cfg.Tracing.Sampler {
	case "always", "never":
	case "ratio":
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
				Value:   cfg.Tracing.SampleRatio,
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: "sampler must be one of always, never, ratio",
			Value:   cfg.Tracing.Sampler,
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}

	return errs
}
