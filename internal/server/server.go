// Package server provides the HTTP API for ragtriever.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/indexer"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/search"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
)

// Answerer answers user queries.
type Answerer interface {
	Answer(ctx context.Context, query, modelID string) (*models.Answer, error)
}

// Loader ingests documents from a load_data request.
type Loader interface {
	Load(ctx context.Context, req *indexer.LoadRequest) (*indexer.Report, error)
}

// CacheAdmin exposes semantic cache housekeeping.
type CacheAdmin interface {
	Count(ctx context.Context) (int64, error)
	Purge(ctx context.Context) error
}

// ProviderChecker verifies the language model credentials.
type ProviderChecker interface {
	Check(ctx context.Context) error
}

// WatchService manages watched directories.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the ragtriever API.
type Server struct {
	engine     *search.Engine
	answers    Answerer
	loader     Loader
	storage    storage.Storage
	cache      CacheAdmin
	provider   ProviderChecker
	watch      WatchService
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	logger     *zap.Logger
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithCache enables cache counts in status and cache purging on reset.
func WithCache(c CacheAdmin) Option {
	return func(s *Server) { s.cache = c }
}

// WithProviderCheck enables the provider check endpoint.
func WithProviderCheck(p ProviderChecker) Option {
	return func(s *Server) { s.provider = p }
}

// WithWatch enables the watch directory endpoints. When configPath is set, changes to
// the watched directories are saved back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	answers Answerer,
	loader Loader,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:  engine,
		answers: answers,
		loader:  loader,
		storage: storage,
		config:  cfg,
		logger:  utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/components", s.handleComponents)
		r.Get("/provider/check", s.handleProviderCheck)

		r.Post("/query", s.handleQuery)
		r.Post("/load_data", s.handleLoadData)
		r.Post("/get_document", s.handleGetDocument)
		r.Post("/get_all_documents", s.handleGetAllDocuments)
		r.Post("/search_documents", s.handleSearchDocuments)
		r.Post("/delete_document", s.handleDeleteDocument)
		r.Post("/reset", s.handleReset)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
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
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("tenant", s.config.Tenant))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
