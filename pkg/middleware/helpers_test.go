package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/origin"
	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// staticPolicy is a PolicySource returning a fixed policy.
type staticPolicy struct {
	policy config.Policy
}

func (s staticPolicy) Get() config.Policy { return s.policy.Clone() }

// flakyPolicy panics on the first failFor calls to Get, then returns policy.
type flakyPolicy struct {
	policy  config.Policy
	failFor int32
	calls   atomic.Int32
}

func (f *flakyPolicy) Get() config.Policy {
	if f.calls.Add(1) <= f.failFor {
		panic("policy source unavailable")
	}
	return f.policy.Clone()
}

// recordingRecorder counts Recorder events.
type recordingRecorder struct {
	mu                sync.Mutex
	decisions         map[string]int
	preflightFailures map[string]int
	middlewareErrors  int
	timeouts          int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		decisions:         make(map[string]int),
		preflightFailures: make(map[string]int),
	}
}

func (r *recordingRecorder) RecordDecision(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[kind+"/"+outcome]++
}

func (r *recordingRecorder) RecordPreflightFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preflightFailures[reason]++
}

func (r *recordingRecorder) RecordMiddlewareError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewareErrors++
}

func (r *recordingRecorder) RecordTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts++
}

func (r *recordingRecorder) decision(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[key]
}

func (r *recordingRecorder) timeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeouts
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newBufferLogger(t *testing.T) (*logging.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	l, err := logging.New(logging.Config{Level: "debug", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}
	return l, buf
}

// entriesWithCategory decodes the JSON log lines in buf with the given
// category.
func entriesWithCategory(t *testing.T, buf *syncBuffer, category logging.Category) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		if m["category"] == string(category) {
			out = append(out, m)
		}
	}
	return out
}

func testPolicy() config.Policy {
	p := config.DefaultPolicy()
	p.AllowedOrigins = []string{"https://app.example.com", "https://Admin.Example.com"}
	p.Revision = 1
	p.StoreID = 1
	return p
}

func newTestGate(t *testing.T, src PolicySource) (*Gate, *recordingRecorder, *syncBuffer) {
	t.Helper()
	logger, buf := newBufferLogger(t)
	rec := newRecordingRecorder()
	cache := origin.NewCache(origin.WithCacheLogger(logging.Discard()))
	return NewGate(src, origin.NewValidator(cache), logger, WithRecorder(rec)), rec, buf
}

// appHandler counts calls and answers 200 "app".
type appHandler struct {
	calls atomic.Int32
}

func (a *appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.calls.Add(1)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("app"))
}

func decodeBody(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body.Bytes(), &m); err != nil {
		t.Fatalf("response body %q is not JSON: %v", body.String(), err)
	}
	return m
}
