// Package server exposes the gridboard HTTP API: widget CRUD, data binding,
// dual-mode rendering, dataset upload and definition listing. A cookie
// session remembers each client's per-widget display mode.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/gridline-labs/gridboard/internal/dataset"
	"github.com/gridline-labs/gridboard/internal/manager"
	"github.com/gridline-labs/gridboard/internal/registry"
	"github.com/gridline-labs/gridboard/internal/render"
)

const sessionName = "gridboard"

// Server is the gridboard HTTP API server.
type Server struct {
	addr     string
	manager  *manager.Manager
	renderer *render.DualModeRenderer
	model    *dataset.Model
	sessions *sessions.CookieStore
	logger   *slog.Logger
	router   chi.Router

	// watcher, when set, hot-reloads widget manifests alongside the HTTP
	// listener.
	watcher *registry.Watcher
}

// Config wires the server.
type Config struct {
	Addr       string
	Manager    *manager.Manager
	Renderer   *render.DualModeRenderer
	Model      *dataset.Model
	SessionKey string
	Logger     *slog.Logger
	Watcher    *registry.Watcher
}

// New creates the server and mounts its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("server requires a widget manager")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("server requires a renderer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	key := []byte(cfg.SessionKey)
	if len(key) == 0 {
		// Ephemeral key: sessions reset on restart.
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	}

	s := &Server{
		addr:     addr,
		manager:  cfg.Manager,
		renderer: cfg.Renderer,
		model:    cfg.Model,
		sessions: sessions.NewCookieStore(key),
		logger:   logger,
		watcher:  cfg.Watcher,
	}
	s.sessions.Options.HttpOnly = true
	s.sessions.Options.SameSite = http.SameSiteLaxMode
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/definitions", s.handleListDefinitions)

		r.Route("/widgets", func(r chi.Router) {
			r.Get("/", s.handleListWidgets)
			r.Post("/", s.handleCreateWidget)
			r.Post("/import", s.handleImportWidget)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWidget)
				r.Put("/", s.handleUpdateWidget)
				r.Delete("/", s.handleDeleteWidget)
				r.Get("/export", s.handleExportWidget)
				r.Post("/binding", s.handleApplyBinding)
				r.Get("/render", s.handleRenderWidget)
				r.Post("/toggle-mode", s.handleToggleMode)
			})
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Get("/", s.handleListDatasets)
			r.Post("/", s.handleUploadDataset)
			r.Post("/{id}/activate", s.handleActivateDataset)
		})
	})

	return r
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until the context is canceled, shutting down gracefully.
// The manifest watcher, when configured, runs in the same group.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("gridboard server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if s.watcher != nil {
		g.Go(func() error {
			err := s.watcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
