// Package telemetry groups the observability packages of corsgate.
//
// # Components
//
//   - logging: categorized diagnostic logging on top of log/slog
//   - metrics: Prometheus collectors for gate decisions, the origin cache,
//     policy changes and request latency
//   - health: liveness, readiness and version endpoints
//   - tracing: OpenTelemetry server spans with W3C Trace Context propagation
//
// Diagnostic entries carry a category (VALIDATION_FAILURE, PREFLIGHT,
// CONFIG_UPDATE, ...) and the request ID when one is attached to the
// context, so a single request can be followed across the pipeline.
package telemetry
