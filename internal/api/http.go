package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bher20/tarifmanager/internal/api/swagger"
	"github.com/bher20/tarifmanager/internal/auth"
	"github.com/bher20/tarifmanager/internal/metrics"
	"github.com/bher20/tarifmanager/internal/notification"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/storage"
	"github.com/bher20/tarifmanager/internal/ui"
)

// maxBody bounds request bodies; the largest payload is a full schedule.
const maxBody = 64 << 10

// Deps are the services the HTTP API is built on.
type Deps struct {
	Rates   *rates.Service
	Storage storage.Storage
	// Auth enables bearer token authentication and RBAC. Nil leaves every
	// route open.
	Auth   *auth.Service
	Notify *notification.Service
	Logger zerolog.Logger
}

type server struct {
	Deps
	log zerolog.Logger
}

// NewMux constructs the HTTP mux, wiring in the schedule API, metrics, and
// health endpoints.
func NewMux(d Deps) *http.ServeMux {
	s := &server{Deps: d, log: d.Logger.With().Str("component", "api").Logger()}
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("live"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)

	s.route(mux, "GET /schedules", auth.ObjSchedules, auth.ActRead, s.handleListSchedules)
	s.route(mux, "GET /schedules/{key}", auth.ObjSchedules, auth.ActRead, s.handleGetSchedule)
	s.route(mux, "PUT /schedules/{key}", auth.ObjSchedules, auth.ActWrite, s.handlePutSchedule)
	s.route(mux, "GET /schedules/{key}/draft", auth.ObjSchedules, auth.ActRead, s.handleGetDraft)
	s.route(mux, "DELETE /schedules/{key}/draft", auth.ObjSchedules, auth.ActWrite, s.handleDiscardDraft)
	s.route(mux, "POST /schedules/{key}/edit", auth.ObjSchedules, auth.ActWrite, s.handleEdit)
	s.route(mux, "POST /schedules/{key}/commit", auth.ObjSchedules, auth.ActWrite, s.handleCommit)
	s.route(mux, "GET /schedules/{key}/status", auth.ObjStatus, auth.ActRead, s.handleStatus)
	s.route(mux, "GET /schedules/{key}/timeline", auth.ObjStatus, auth.ActRead, s.handleTimeline)
	s.route(mux, "GET /schedules/{key}/transitions", auth.ObjStatus, auth.ActRead, s.handleTransitions)
	s.route(mux, "POST /live", auth.ObjLive, auth.ActWrite, s.handleLive)

	s.route(mux, "GET /jobs", auth.ObjJobs, auth.ActRead, s.handleListJobs)
	s.route(mux, "PUT /jobs/{name}/interval", auth.ObjJobs, auth.ActWrite, s.handleSetJobInterval)

	if d.Notify != nil {
		s.route(mux, "GET /settings/email", auth.ObjSettings, auth.ActRead, s.handleGetEmail)
		s.route(mux, "PUT /settings/email", auth.ObjSettings, auth.ActWrite, s.handlePutEmail)
		s.route(mux, "POST /settings/email/test", auth.ObjSettings, auth.ActWrite, s.handleTestEmail)
	}

	mux.Handle("/openapi/", http.StripPrefix("/openapi", swagger.Handler()))
	mux.Handle("/ui/", http.StripPrefix("/ui/", ui.Handler()))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	return mux
}

// route registers h under pattern behind authorization and request metrics.
func (s *server) route(mux *http.ServeMux, pattern, obj, act string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.Auth != nil {
		handler = s.Auth.Middleware(s.Auth.RequirePermission(obj, act, handler))
	}
	mux.Handle(pattern, instrument(pattern, handler))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		next.ServeHTTP(rec, r)
		metrics.RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if rec.status >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Storage == nil {
		_, _ = w.Write([]byte("ready"))
		return
	}
	if err := s.Storage.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("readyz: db ping failed")
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps service errors to HTTP statuses.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rates.ErrUnknownSchedule):
		status = http.StatusNotFound
	case errors.Is(err, schedule.ErrInvalidOp), errors.Is(err, schedule.ErrMalformed):
		status = http.StatusBadRequest
	case errors.Is(err, notification.ErrNotConfigured):
		status = http.StatusConflict
	case r.Context().Err() != nil:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
