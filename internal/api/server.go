// Package api exposes the pitch engine, the persona catalogue and the admin
// session over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/apresai/pitcharena/internal/admin"
	"github.com/apresai/pitcharena/internal/auth"
	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/persona"
)

// Options configures the HTTP surface.
type Options struct {
	Port          int
	CORSOrigins   []string
	SecureCookies bool
	// Metrics serves /metrics. Defaults to the default Prometheus registry.
	Metrics http.Handler
}

// Server wires handlers to their dependencies.
type Server struct {
	engine   *engine.Engine
	personas persona.Reader
	admin    *admin.Service
	sessions *auth.Sessions
	logger   *slog.Logger
	opts     Options
	http     *http.Server
}

// NewServer creates the HTTP server.
func NewServer(eng *engine.Engine, personas persona.Reader, adm *admin.Service, sessions *auth.Sessions, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	s := &Server{
		engine:   eng,
		personas: personas,
		admin:    adm,
		sessions: sessions,
		logger:   logger,
		opts:     opts,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the fully instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.sessions.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.opts.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Patch("/", s.handlePatchSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/turns", s.handleSubmitTurn)
			})
		})
		r.Post("/chat", s.handleChat)
		r.Get("/stats/{userId}", s.handleStats)

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", s.handleListPersonas)
			r.Post("/", s.handleCreatePersona)
			r.Get("/{id}", s.handleGetPersona)
			r.Patch("/{id}", s.handleUpdatePersona)
			r.Delete("/{id}", s.handleDeletePersona)
		})

		r.Post("/admin/auth", s.handleAdminAuth)
		r.Get("/admin/check-session", s.handleCheckSession)
	})

	return otelhttp.NewHandler(r, "pitcharena.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ChatHandler serves only the stateless chat round trip. The Lambda function
// URL deployment uses it; it needs neither the admin service nor sessions.
func (s *Server) ChatHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/chat", s.handleChat)

	return otelhttp.NewHandler(r, "pitcharena.chat")
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
