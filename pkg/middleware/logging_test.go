package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type requestLog struct {
	method string
	status int
}

type requestRecorderFunc func(method string, status int, d time.Duration)

func (f requestRecorderFunc) RecordRequest(method string, status int, d time.Duration) {
	f(method, status, d)
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"success is info", http.StatusOK, "INFO"},
		{"client error is warn", http.StatusForbidden, "WARN"},
		{"server error is error", http.StatusGatewayTimeout, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			var got []requestLog
			rec := requestRecorderFunc(func(method string, status int, d time.Duration) {
				got = append(got, requestLog{method, status})
			})

			handler := AccessLog(logger, rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			req := httptest.NewRequest(http.MethodPut, "/items", nil)
			req.Header.Set(HeaderOrigin, "https://app.example.com")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if len(got) != 1 || got[0].method != http.MethodPut || got[0].status != tt.status {
				t.Errorf("recorded = %v", got)
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("invalid log line %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["origin"] != "https://app.example.com" {
				t.Errorf("origin = %v", entry["origin"])
			}
		})
	}
}

func TestAccessLog_DefaultStatus(t *testing.T) {
	var status int
	rec := requestRecorderFunc(func(_ string, s int, _ time.Duration) { status = s })
	handler := AccessLog(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
}
