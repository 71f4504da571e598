package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// timeoutBody is the JSON body of a 504 response.
type timeoutBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	ElapsedTime int64  `json:"elapsedTime"`
}

// TimeoutGuard bounds how long a request may run. The next handler starts
// immediately on its own goroutine with a request context that expires
// after the deadline.
//
// If the deadline passes before the handler has sent response headers, the
// guard sets the baseline CORS headers, answers 504 and returns; later
// writes by the handler are discarded and return http.ErrHandlerTimeout. If
// headers were already sent, the guard only logs the timeout and waits for
// the handler to finish, so a response is never written twice.
type TimeoutGuard struct {
	timeout  time.Duration
	policies PolicySource
	logger   *logging.Logger
	recorder Recorder
	now      func() time.Time
}

// NewTimeoutGuard creates a guard with the given deadline. A non-positive
// timeout uses config.DefaultRequestTimeout.
func NewTimeoutGuard(timeout time.Duration, policies PolicySource, logger *logging.Logger, opts ...Option) *TimeoutGuard {
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := buildOptions(opts)
	return &TimeoutGuard{
		timeout:  timeout,
		policies: policies,
		logger:   logger,
		recorder: o.recorder,
		now:      time.Now,
	}
}

// Middleware returns the guard as a Middleware.
func (tg *TimeoutGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := tg.now()

		ctx, cancel := context.WithTimeout(r.Context(), tg.timeout)
		defer cancel()
		r = r.WithContext(ctx)

		tw := &timeoutWriter{
			w: w,
			h: w.Header().Clone(),
		}
		done := make(chan struct{})
		panicChan := make(chan any, 1)

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicChan <- p
				}
			}()
			next.ServeHTTP(tw, r)
			close(done)
		}()

		select {
		case p := <-panicChan:
			panic(p)

		case <-done:
			tw.finish()

		case <-ctx.Done():
			select {
			case <-done:
				// Finished right at the deadline.
				tw.finish()
				return
			default:
			}
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// The client went away; let the handler wind down.
				tg.wait(tw, done, panicChan)
				return
			}
			tg.expire(w, r, tw, start, done, panicChan)
		}
	})
}

// expire handles a deadline that passed while the handler was running.
func (tg *TimeoutGuard) expire(w http.ResponseWriter, r *http.Request, tw *timeoutWriter, start time.Time, done chan struct{}, panicChan chan any) {
	tw.mu.Lock()
	elapsed := tg.now().Sub(start)
	tg.recorder.RecordTimeout()

	fields := logging.Fields{
		"url":          r.URL.String(),
		"method":       r.Method,
		"elapsed_ms":   elapsed.Milliseconds(),
		"deadline_ms":  tg.timeout.Milliseconds(),
		"headers_sent": tw.wroteHeader,
	}
	tg.logger.Timeout(r.Context(), fields)

	if tw.wroteHeader {
		tw.mu.Unlock()
		tg.wait(tw, done, panicChan)
		return
	}

	tw.timedOut = true
	defer tw.mu.Unlock()

	if err := safeBaselineHeaders(w.Header(), tg.policies); err != nil {
		tg.logger.MiddlewareError(r.Context(), err, stackOf(err), logging.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
			"stage":  "timeout",
		})
	}

	writeJSON(w, http.StatusGatewayTimeout, timeoutBody{
		Error:       "Gateway Timeout",
		Message:     fmt.Sprintf("Request exceeded %s minute timeout", formatMinutes(tg.timeout)),
		ElapsedTime: elapsed.Milliseconds(),
	})
}

// wait blocks until the handler returns, re-raising its panic if any.
func (tg *TimeoutGuard) wait(tw *timeoutWriter, done chan struct{}, panicChan chan any) {
	select {
	case p := <-panicChan:
		panic(p)
	case <-done:
		tw.finish()
	}
}

// formatMinutes renders d in minutes without trailing zeros: 5m is "5",
// 90s is "1.5".
func formatMinutes(d time.Duration) string {
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64)
}

// timeoutWriter serializes the handler's writes against the guard's timeout
// response. Headers are staged in h and copied to the real writer when the
// status is written.
type timeoutWriter struct {
	w http.ResponseWriter
	h http.Header

	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.h
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

// Flush sends buffered data to the client, sending headers first if needed.
func (tw *timeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	copyHeader(tw.w.Header(), tw.h)
	tw.w.WriteHeader(code)
	tw.wroteHeader = true
}

// finish copies staged headers for a handler that returned without writing.
func (tw *timeoutWriter) finish() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.wroteHeader && !tw.timedOut {
		copyHeader(tw.w.Header(), tw.h)
	}
}

func copyHeader(dst, src http.Header) {
	for k := range dst {
		if _, ok := src[k]; !ok {
			delete(dst, k)
		}
	}
	for k, vv := range src {
		dst[k] = vv
	}
}
