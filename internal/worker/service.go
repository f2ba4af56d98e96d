// Package worker provides the HTTP service for parley.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/parley-labs/parley/internal/config"
	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/internal/engine"
)

// Service is the worker HTTP service: router, store, and engine.
type Service struct {
	version string
	config  *config.Config
	store   *db.Store
	engine  *engine.Engine

	router     *chi.Mux
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	ready      atomic.Bool
	startTime  time.Time
}

// New creates the service and mounts its routes.
func New(cfg *config.Config, store *db.Store, eng *engine.Engine, version string) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:   version,
		config:    cfg,
		store:     store,
		engine:    eng,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Router exposes the HTTP handler for serving and tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start binds the HTTP listener and serves until Shutdown.
func (s *Service) Start() error {
	addr := fmt.Sprintf(":%d", s.config.WorkerPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.ready.Store(true)
	log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/turns", s.handleAppendTurn)
				r.Post("/turns/stream", s.handleAppendTurnStream)
				r.Post("/analyze", s.handleAnalyze)
				r.Post("/finalize", s.handleFinalize)
				r.Get("/suggestions", s.handleSuggestions)
				r.Get("/capsule", s.handleGetCapsule)
				r.Post("/capsule", s.handleCreateCapsule)
				r.Get("/snippets", s.handleSnippets)
			})
		})
	})

	// Share links resolve outside the API prefix.
	s.router.Get("/s/{shareToken}", s.handleSharedCapsule)
}

// requestLogger logs each request at debug with method, path, and timing.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}
