// Package web provides the HTTP server and handlers for the chunked upload
// and import API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/skuflow/skuflow/internal/config"
	"github.com/skuflow/skuflow/internal/importer"
	"github.com/skuflow/skuflow/internal/upload"
	"github.com/skuflow/skuflow/internal/web/middleware"
)

// ProductLister is the read surface for the product listing endpoint.
type ProductLister interface {
	ListProducts(ctx context.Context, limit, offset int) ([]importer.Product, error)
}

// Server is the HTTP server for the import service.
type Server struct {
	engine   *importer.Engine
	uploads  *upload.Store
	products ProductLister
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires the API routes around the engine and chunk store.
func NewServer(engine *importer.Engine, uploads *upload.Store, products ProductLister, cfg *config.Config) *Server {
	s := &Server{
		engine:   engine,
		uploads:  uploads,
		products: products,
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, rateWindow)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/upload/init", s.handleUploadInit)
		r.Post("/upload/chunk", s.handleUploadChunk)
		r.Post("/upload/complete", s.handleUploadComplete)

		r.Post("/imports/{importID}/run", s.handleImportRun)
		r.Get("/imports/{importID}/status", s.handleImportStatus)
		r.Get("/imports/{importID}/errors", s.handleImportErrors)

		r.Get("/products", s.handleListProducts)
	})
}

// Handler returns the root handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
