// Package tracing provides OpenTelemetry tracing for the corsgate request
// pipeline.
//
// # Overview
//
// Each public request gets one server span, started after the request ID is
// assigned and ended when the response is complete. W3C Trace Context
// (traceparent/tracestate) is extracted from the incoming request, so the
// span joins the caller's trace, and is injected into requests forwarded to
// the upstream application.
//
// Spans carry the method, path, Origin, request ID and response status. A
// 403 is the gate rejecting the origin; 5xx responses, including the 504 of
// the timeout guard, mark the span as failed.
//
// # Sampling Strategies
//
// Three sampling strategies are supported:
//   - always: Sample all traces (development/debugging)
//   - never: Sample no traces
//   - ratio: Sample a fraction of traces by trace ID
//
// All strategies are parent-based: a sampled caller keeps its trace sampled.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	handler = tracer.Middleware(handler)
//
// When tracing is disabled, New returns a no-op tracer; Middleware still
// extracts incoming trace context but records nothing.
package tracing
