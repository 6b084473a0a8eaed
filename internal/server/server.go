// Package server provides the HTTP API for Kaiwa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/search"
	"github.com/hyperjump/kaiwa/internal/segment"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vectorize"
)

// ModelInfo describes the active embedding model. *embedding.Provider satisfies it.
type ModelInfo interface {
	ModelName() string
	Dimensions() int
	Available() bool
}

type cacheStatser interface {
	CacheStats() (embedding.CacheStats, bool)
}

// PendingCounter reports queued background work. *updater.Updater satisfies it.
type PendingCounter interface {
	Pending() int
}

// Deps are the services the API exposes. Text and Tasks are optional.
type Deps struct {
	Store      storage.Store
	Chats      *chat.Service
	Segments   *segment.Engine
	Search     *search.Engine
	Hybrid     *search.HybridRanker
	Text       *search.TextSearcher
	Vectorizer *vectorize.Coordinator
	Model      ModelInfo
	Tasks      PendingCounter
}

// Server is the HTTP server for the Kaiwa API.
type Server struct {
	deps   Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Router returns the API routes with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/contacts", s.handleSaveContact)
		r.Post("/chats", s.handleCreateChat)
		r.Route("/chats/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetChat)
			r.Put("/title", s.handleRenameChat)
			r.Post("/messages", s.handleAppendMessage)
			r.Get("/segments", s.handleListSegments)
			r.Post("/segments/daily", s.handleDailySegments)
			r.Post("/segments/thematic", s.handleThematicSegments)
		})
		r.Post("/search", s.handleSearch)
		r.Post("/vectorize", s.handleVectorize)
		r.Get("/stats", s.handleStats)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
