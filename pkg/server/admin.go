package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/middleware"
	"mercator-hq/corsgate/pkg/telemetry/logging"

	"github.com/gorilla/mux"
)

// maxAdminBodyBytes bounds admin request bodies.
const maxAdminBodyBytes = 1 << 20

// reloadResult is the body of POST /admin/cors/policy/reload.
type reloadResult struct {
	Success bool                `json:"success"`
	Errors  []config.FieldError `json:"errors,omitempty"`
	Message string              `json:"message,omitempty"`
	Policy  config.Policy       `json:"policy"`
}

type levelBody struct {
	Level string `json:"level"`
}

// AdminHandler returns the admin API router:
//
//	GET    /admin/cors/policy          active policy
//	PATCH  /admin/cors/policy          partial update, 200 or 422
//	POST   /admin/cors/policy/reset    reset and reload from the sources
//	POST   /admin/cors/policy/reload   re-read file and environment
//	GET    /admin/cors/cache           cache statistics
//	DELETE /admin/cors/cache           clear the cache
//	GET    /admin/cors/history         recent policy changes (?limit=N)
//	GET    /admin/log/level            current diagnostic log level
//	PUT    /admin/log/level            change the diagnostic log level
//	GET    /metrics                    Prometheus metrics, when enabled
//	GET    /health, /ready, /version
func (s *Server) AdminHandler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)

	api := r.PathPrefix("/admin").Subrouter()
	api.HandleFunc("/cors/policy", s.getPolicy).Methods(http.MethodGet)
	api.HandleFunc("/cors/policy", s.patchPolicy).Methods(http.MethodPatch)
	api.HandleFunc("/cors/policy/reset", s.resetPolicy).Methods(http.MethodPost)
	api.HandleFunc("/cors/policy/reload", s.reloadPolicy).Methods(http.MethodPost)
	api.HandleFunc("/cors/cache", s.getCache).Methods(http.MethodGet)
	api.HandleFunc("/cors/cache", s.clearCache).Methods(http.MethodDelete)
	api.HandleFunc("/cors/history", s.listHistory).Methods(http.MethodGet)
	api.HandleFunc("/log/level", s.getLogLevel).Methods(http.MethodGet)
	api.HandleFunc("/log/level", s.setLogLevel).Methods(http.MethodPut)

	if s.deps.Metrics.Enabled() {
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	s.deps.Health.Mount(r, s.deps.Version)

	return middleware.Chain(r,
		middleware.Recovery(s.deps.Logger.Slog()),
		middleware.RequestID,
	)
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Policies.Get())
}

func (s *Server) patchPolicy(w http.ResponseWriter, r *http.Request) {
	var update config.PolicyUpdate
	if err := decodeBody(r, &update); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   "Bad Request",
			Message: "Invalid policy update: " + err.Error(),
		})
		return
	}
	if update.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   "Bad Request",
			Message: "Invalid policy update: no policy fields given",
		})
		return
	}

	result := s.deps.Policies.Update(update)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) resetPolicy(w http.ResponseWriter, r *http.Request) {
	s.deps.Policies.Reset()
	writeJSON(w, http.StatusOK, s.deps.Policies.Get())
}

func (s *Server) reloadPolicy(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Policies.Reload()
	if err == nil {
		writeJSON(w, http.StatusOK, reloadResult{Success: true, Policy: s.deps.Policies.Get()})
		return
	}

	var verr config.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, reloadResult{
			Errors: verr.Errors,
			Policy: s.deps.Policies.Get(),
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, reloadResult{
		Message: err.Error(),
		Policy:  s.deps.Policies.Get(),
	})
}

func (s *Server) getCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Validator.Cache().Stats())
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	cache := s.deps.Validator.Cache()
	cache.Clear()
	writeJSON(w, http.StatusOK, cache.Stats())
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusNotFound, apiError{
			Error:   "Not Found",
			Message: "Policy history is disabled",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, apiError{
				Error:   "Bad Request",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records, err := s.deps.History.List(r.Context(), limit)
	if err != nil {
		s.deps.Logger.Slog().ErrorContext(r.Context(), "failed to list policy history", "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:   "Internal Server Error",
			Message: "Failed to read policy history",
		})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getLogLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, levelBody{Level: strings.ToLower(s.deps.Logger.Level().String())})
}

func (s *Server) setLogLevel(w http.ResponseWriter, r *http.Request) {
	var body levelBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "Bad Request", Message: err.Error()})
		return
	}
	level, err := logging.ParseLevel(body.Level)
	if err != nil || strings.TrimSpace(body.Level) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   "Bad Request",
			Message: "level must be one of debug, info, warn, error",
		})
		return
	}

	s.deps.Logger.SetLevel(level)
	s.deps.Logger.Slog().Info("log level changed", "level", level.String())
	writeJSON(w, http.StatusOK, levelBody{Level: strings.ToLower(level.String())})
}

// decodeBody decodes a single JSON object from r's body, rejecting unknown
// fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
