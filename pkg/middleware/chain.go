package middleware

import (
	"encoding/json"
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so that the first middleware is the outermost:
//
//	Chain(app, Recovery(l), RequestID, AccessLog(l, m))
//
// serves Recovery(RequestID(AccessLog(app))).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recorder receives request pipeline events, typically for metrics.
type Recorder interface {
	RecordDecision(kind, outcome string)
	RecordPreflightFailure(reason string)
	RecordMiddlewareError()
	RecordTimeout()
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string) {}
func (nopRecorder) RecordPreflightFailure(string) {}
func (nopRecorder) RecordMiddlewareError() {}
func (nopRecorder) RecordTimeout() {}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already on the wire; nothing useful can be done with
	// an encoding error.
	_ = json.NewEncoder(w).Encode(v)
}
