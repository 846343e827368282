/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes health, metrics and read-only status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/executor"
	"github.com/friendsincode/belfry/internal/logbuffer"
	"github.com/friendsincode/belfry/internal/scheduler"
	"github.com/friendsincode/belfry/internal/telemetry"
)

// SchedulerStatus is the scheduler view the status endpoints read.
type SchedulerStatus interface {
	Status() scheduler.Status
	NextRuns(ctx context.Context, now time.Time, limit int) ([]scheduler.Upcoming, error)
}

// SessionLister lists running playback sessions.
type SessionLister interface {
	Active() []executor.SessionInfo
}

// Deps are the services the HTTP surface reports on. DB, Bus and Logs may
// be nil.
type Deps struct {
	Scheduler SchedulerStatus
	Sessions  SessionLister
	Bus       *events.Bus
	DB        *gorm.DB
	Clock     clock.Clock
	Logs      *logbuffer.Buffer
	Version   string
	// Leader reports whether this instance runs the scheduler. Nil means
	// leader election is disabled.
	Leader func() bool
}

// Server bundles the router and the HTTP server.
type Server struct {
	deps       Deps
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New constructs the server and its routes.
func New(addr string, deps Deps, logger zerolog.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(otelhttp.NewMiddleware("belfry.http"))

	srv := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
		router: router,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// The event stream is long lived; other handlers finish quickly.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns the underlying HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/sessions", s.handleSessions)
		r.Get("/schedules/next", s.handleNextRuns)
		r.Get("/events", s.handleEvents)
		r.Get("/logs", s.handleLogs)
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Scheduler string `json:"scheduler"`
	Database  string `json:"database,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Scheduler: s.deps.Scheduler.Status().State}
	code := http.StatusOK

	if resp.Scheduler == scheduler.StateFailed {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	if s.deps.DB != nil {
		resp.Database = "ok"
		if err := pingDB(r.Context(), s.deps.DB); err != nil {
			s.logger.Warn().Err(err).Msg("health check database ping failed")
			resp.Database = "unreachable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, resp)
}

type statusResponse struct {
	Version   string                 `json:"version"`
	Now       time.Time              `json:"now"`
	Leader    *bool                  `json:"leader,omitempty"`
	Scheduler scheduler.Status       `json:"scheduler"`
	Sessions  []executor.SessionInfo `json:"sessions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   s.deps.Version,
		Now:       s.deps.Clock.Now(),
		Scheduler: s.deps.Scheduler.Status(),
		Sessions:  s.activeSessions(),
	}
	if s.deps.Leader != nil {
		leader := s.deps.Leader()
		resp.Leader = &leader
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.activeSessions())
}

func (s *Server) handleNextRuns(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.deps.Scheduler.NextRuns(r.Context(), s.deps.Clock.Now(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("next runs failed")
		writeError(w, http.StatusInternalServerError, "failed to load schedules")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log capture disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		ScheduleID: q.Get("schedule_id"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: true,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		params.Limit = n
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		params.Since = since
	}

	writeJSON(w, http.StatusOK, s.deps.Logs.Query(params))
}

func (s *Server) activeSessions() []executor.SessionInfo {
	if s.deps.Sessions == nil {
		return []executor.SessionInfo{}
	}
	return s.deps.Sessions.Active()
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := zerolog.DebugLevel
			if ww.Status() >= http.StatusInternalServerError {
				level = zerolog.WarnLevel
			}
			logger.WithLevel(level).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func pingDB(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
