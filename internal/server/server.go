// Package server exposes a session over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"eventdash/internal/agent"
	"eventdash/internal/session"

	"github.com/gorilla/mux"
)

// Options configures a Server.
type Options struct {
	Logger    *slog.Logger
	Location  *time.Location
	Now       func() time.Time
	Assistant *agent.Assistant // optional; /api/chat answers 503 without it
}

type Server struct {
	Server    *http.Server
	logger    *slog.Logger
	session   *session.Session
	assistant *agent.Assistant
	loc       *time.Location
	now       func() time.Time
}

// New returns a server for sess listening on addr.
func New(addr string, sess *session.Session, opts Options) *Server {
	s := &Server{
		Server: &http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:    opts.Logger,
		session:   sess,
		assistant: opts.Assistant,
		loc:       opts.Location,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := mux.NewRouter()
	s.setupRoutes(r)
	s.Server.Handler = r

	return s
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.Use(s.loggingMiddleware)
	r.Use(s.sessionMiddleware)

	r.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.listEvents).Methods(http.MethodGet)
	api.HandleFunc("/events", s.createEvent).Methods(http.MethodPost)
	api.HandleFunc("/events.ics", s.exportEvents).Methods(http.MethodGet)
	api.HandleFunc("/readable", s.readableState).Methods(http.MethodGet)
	api.HandleFunc("/actions", s.listActions).Methods(http.MethodGet)
	api.HandleFunc("/actions/{name}", s.invokeAction).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.chat).Methods(http.MethodPost)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.Server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting server", "address", s.Server.Addr)
	return s.Server.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.Server.Shutdown(ctx)
}

// loggingMiddleware logs all incoming requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{w, http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start))
	})
}

// sessionMiddleware attaches the session cache to the request context.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(s.session.Context(r.Context())))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
