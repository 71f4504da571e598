package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/origin"
	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// Decision kinds and outcomes passed to Recorder.RecordDecision.
const (
	KindSimple    = "simple"
	KindPreflight = "preflight"

	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// errorBody is the JSON body of 403 and 400 responses.
type errorBody struct {
	Error            string   `json:"error"`
	Message          string   `json:"message"`
	Origin           string   `json:"origin,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	AllowedMethods   []string `json:"allowedMethods,omitempty"`
	RequestedHeaders string   `json:"requestedHeaders,omitempty"`
}

// Gate enforces the CORS policy on every request.
//
// Non-OPTIONS requests are simple requests: a disallowed origin gets a 403
// and the next handler is not called; an allowed one gets the CORS headers
// and continues. OPTIONS requests are preflights and are always answered by
// the gate: 403 for a disallowed origin, 400 for a disallowed requested
// method or header, otherwise 200 with the CORS headers and no body.
//
// If the gate itself fails while deciding, it logs the fault, sets the
// baseline headers as a best effort and calls the next handler anyway.
type Gate struct {
	policies  PolicySource
	validator *origin.Validator
	logger    *logging.Logger
	recorder  Recorder
}

// Option configures a Gate or a TimeoutGuard.
type Option func(*options)

type options struct {
	recorder Recorder
}

// WithRecorder reports decisions, faults and timeouts to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewGate creates a gate reading the policy from policies on every request.
func NewGate(policies PolicySource, validator *origin.Validator, logger *logging.Logger, opts ...Option) *Gate {
	if validator == nil {
		validator = origin.NewValidator(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := buildOptions(opts)
	return &Gate{
		policies:  policies,
		validator: validator,
		logger:    logger,
		recorder:  o.recorder,
	}
}

// Middleware returns the gate as a Middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proceed, err := g.applyPolicy(w, r)
		if err != nil {
			g.handleFault(w, r, err)
			next.ServeHTTP(w, r)
			return
		}
		if proceed {
			next.ServeHTTP(w, r)
		}
	})
}

// applyPolicy runs the decision for r and writes any terminal response. It
// reports whether the next handler should run. A panic is returned as an
// error.
func (g *Gate) applyPolicy(w http.ResponseWriter, r *http.Request) (proceed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			proceed = false
			err = newPanicError(rec)
		}
	}()

	policy := g.policies.Get()
	requestOrigin := r.Header.Get(HeaderOrigin)

	if r.Method == http.MethodOptions {
		return false, g.preflight(w, r, policy, requestOrigin)
	}
	return g.simple(w, r, policy, requestOrigin)
}

// applyFallback sets the baseline headers from the current policy. A panic
// is returned as an error.
func (g *Gate) applyFallback(w http.ResponseWriter) error {
	return safeBaselineHeaders(w.Header(), g.policies)
}

func (g *Gate) simple(w http.ResponseWriter, r *http.Request, policy config.Policy, requestOrigin string) (bool, error) {
	ctx := r.Context()
	res := g.validator.Validate(requestOrigin, policy)

	if !res.Allowed {
		g.logger.ValidationFailure(ctx, requestOrigin, res.Reason, r.URL.Path, r.Method)
		g.recorder.RecordDecision(KindSimple, OutcomeRejected)
		writeForbidden(w, requestOrigin, res.Reason)
		return false, nil
	}

	if policy.DebugMode && requestOrigin != "" {
		g.logger.ValidationSuccess(ctx, requestOrigin, res.MatchedOrigin, res.Reason)
	}

	if err := setPolicyHeaders(w.Header(), policy, requestOrigin); err != nil {
		return false, err
	}

	if policy.DebugMode {
		g.logger.MissingHeaders(ctx, w.Header(), logging.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
			"origin": requestOrigin,
		})
	}

	g.recorder.RecordDecision(KindSimple, OutcomeAllowed)
	return true, nil
}

func (g *Gate) preflight(w http.ResponseWriter, r *http.Request, policy config.Policy, requestOrigin string) error {
	ctx := r.Context()
	res := g.validator.Validate(requestOrigin, policy)

	if !res.Allowed {
		g.logger.Preflight(ctx, logging.PreflightOriginValidation, logging.Fields{
			"origin": requestOrigin,
			"reason": res.Reason,
			"path":   r.URL.Path,
		})
		g.rejectPreflight("origin")
		writeForbidden(w, requestOrigin, res.Reason)
		return nil
	}

	if method := r.Header.Get(HeaderRequestMethod); method != "" && !policy.AllowsMethod(method) {
		g.logger.Preflight(ctx, logging.PreflightMethodValidation, logging.Fields{
			"origin":          requestOrigin,
			"requested":       method,
			"allowed_methods": policy.AllowedMethods,
			"path":            r.URL.Path,
		})
		g.rejectPreflight("method")
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:          "Invalid preflight request",
			Message:        fmt.Sprintf("Method %s is not allowed", method),
			AllowedMethods: policy.AllowedMethods,
		})
		return nil
	}

	if requested := requestedHeaders(r); requested != "" && !allHeadersAllowed(requested, policy) {
		g.logger.Preflight(ctx, logging.PreflightHeadersValidation, logging.Fields{
			"origin":          requestOrigin,
			"requested":       requested,
			"allowed_headers": policy.AllowedHeaders,
			"path":            r.URL.Path,
		})
		g.rejectPreflight("headers")
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:            "Invalid preflight request",
			Message:          "One or more requested headers are not allowed",
			RequestedHeaders: requested,
		})
		return nil
	}

	if err := setPolicyHeaders(w.Header(), policy, requestOrigin); err != nil {
		return err
	}

	g.logger.Preflight(ctx, logging.PreflightSuccess, logging.Fields{
		"origin":         requestOrigin,
		"matched_origin": res.MatchedOrigin,
		"path":           r.URL.Path,
	})
	g.recorder.RecordDecision(KindPreflight, OutcomeAllowed)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (g *Gate) rejectPreflight(reason string) {
	g.recorder.RecordPreflightFailure(reason)
	g.recorder.RecordDecision(KindPreflight, OutcomeRejected)
}

// handleFault logs err, then makes a second, independently guarded attempt
// to set the baseline headers. A failure of that attempt is logged and
// dropped.
func (g *Gate) handleFault(w http.ResponseWriter, r *http.Request, err error) {
	fields := logging.Fields{
		"path":   r.URL.Path,
		"method": r.Method,
		"origin": r.Header.Get(HeaderOrigin),
	}

	g.recorder.RecordMiddlewareError()
	g.recorder.RecordDecision(classify(r), OutcomeError)
	g.logger.MiddlewareError(r.Context(), err, stackOf(err), fields)

	if ferr := g.applyFallback(w); ferr != nil {
		fields["stage"] = "fallback"
		g.logger.MiddlewareError(r.Context(), ferr, stackOf(ferr), fields)
	}
}

func classify(r *http.Request) string {
	if r.Method == http.MethodOptions {
		return KindPreflight
	}
	return KindSimple
}

func writeForbidden(w http.ResponseWriter, requestOrigin, reason string) {
	writeJSON(w, http.StatusForbidden, errorBody{
		Error:   "Forbidden",
		Message: "Origin not allowed",
		Origin:  requestOrigin,
		Reason:  reason,
	})
}

// requestedHeaders returns the Access-Control-Request-Headers value, joining
// repeated header lines with commas. A blank value counts as absent.
func requestedHeaders(r *http.Request) string {
	return strings.TrimSpace(strings.Join(r.Header.Values(HeaderRequestHeaders), ","))
}

// allHeadersAllowed reports whether every comma-separated name in requested
// is in the policy's allowed headers, case-insensitively. An empty element
// is not an allowed header.
func allHeadersAllowed(requested string, policy config.Policy) bool {
	for _, name := range strings.Split(requested, ",") {
		name = strings.TrimSpace(name)
		if name == "" || !policy.AllowsHeader(name) {
			return false
		}
	}
	return true
}
