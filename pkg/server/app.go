package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"mercator-hq/corsgate/pkg/telemetry/logging"
	"mercator-hq/corsgate/pkg/telemetry/tracing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"
)

// newApp returns the application handler behind the gate: a reverse proxy to
// upstream, or a router that answers 404 for everything when upstream is
// empty.
func newApp(upstream string, logger *logging.Logger) (http.Handler, error) {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)

	if upstream == "" {
		return r, nil
	}

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", upstream, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		tracing.Inject(req.Context(), req.Header)
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logger.Slog().ErrorContext(req.Context(), "upstream request failed",
			"upstream", target.Host,
			"path", req.URL.Path,
			"request_id", logging.GetRequestID(req.Context()),
			"error", err,
		)
		tracing.SetError(trace.SpanFromContext(req.Context()), err)
		writeJSON(w, http.StatusBadGateway, apiError{
			Error:   "Bad Gateway",
			Message: "The upstream service could not be reached",
		})
	}
	// CORS headers belong to the gate; drop any the upstream sets.
	proxy.ModifyResponse = func(resp *http.Response) error {
		for _, h := range upstreamCORSHeaders {
			resp.Header.Del(h)
		}
		return nil
	}

	r.PathPrefix("/").Handler(proxy)
	return r, nil
}

var upstreamCORSHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
	"Access-Control-Allow-Credentials",
	"Access-Control-Max-Age",
}

// apiError is the JSON error body of the server's own responses.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, apiError{
		Error:   "Not Found",
		Message: fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
