package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/ragtriever/internal/answer"
	"github.com/hyperjump/ragtriever/internal/cache"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/embedding"
	"github.com/hyperjump/ragtriever/internal/indexer"
	"github.com/hyperjump/ragtriever/internal/keyword"
	"github.com/hyperjump/ragtriever/internal/llm"
	"github.com/hyperjump/ragtriever/internal/search"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/hyperjump/ragtriever/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Storage      *storage.SQLiteStorage
	Embedder     embedding.Embedder
	VectorIndex  *vector.MemoryIndex
	KeywordIndex *keyword.BleveIndex
	Engine       *search.Engine
	Indexer      *indexer.Indexer
	CacheStore   cache.Store
	Cache        *cache.SemanticCache
	Provider     *llm.OpenAIProvider
	Answers      *answer.Engine

	logger *zap.Logger
}

// Close saves the vector index and releases every component.
func (c *Components) Close() {
	if c.VectorIndex != nil && c.Config.Storage.VectorIndexPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Config.Storage.VectorIndexPath), 0755); err == nil {
			if err := c.VectorIndex.Save(c.Config.Storage.VectorIndexPath); err != nil {
				c.logger.Warn("vector index save failed", zap.String("path", c.Config.Storage.VectorIndexPath), zap.Error(err))
			}
		}
	}
	if c.CacheStore != nil {
		_ = c.CacheStore.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents wires storage, indexes, cache and generator from cfg. The
// language model is only required when withLLM is set; without it Answers is nil.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withLLM bool) (c *Components, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if withLLM {
		if err := cfg.ValidateLLM(); err != nil {
			return nil, err
		}
	}

	c = &Components{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.VectorIndex = nil
			c.Close()
		}
	}()

	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return c, fmt.Errorf("create data directory: %w", err)
		}
	}

	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return c, fmt.Errorf("failed to initialize storage: %w", err)
	}

	c.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		return c, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if err := c.Storage.EnsureVectorizer(ctx, c.Embedder.Name()); err != nil {
		if errors.Is(err, storage.ErrVectorizerMismatch) {
			return c, &config.ConfigurationError{Field: "embedding.provider", Reason: err.Error()}
		}
		return c, err
	}

	c.VectorIndex, err = vector.NewMemoryIndex(c.Embedder.Dimensions())
	if err != nil {
		return c, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := c.VectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			logger.Warn("vector index load skipped (use full sync)", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return c, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	c.Engine = search.NewEngine(c.Storage, c.Embedder, c.VectorIndex, c.KeywordIndex, &cfg.Retrieval, cfg.Tenant, search.WithLogger(logger))
	if err := c.Engine.SyncVectorIndex(ctx); err != nil {
		return c, fmt.Errorf("failed to sync vector index: %w", err)
	}

	if cfg.Cache.EnabledOrDefault() {
		c.CacheStore, err = cache.NewStore(ctx, cfg.Cache, c.Storage.DB())
		if err != nil {
			return c, fmt.Errorf("failed to initialize semantic cache: %w", err)
		}
		c.Cache = cache.New(c.CacheStore, c.Embedder, cfg.Tenant, cfg.Cache.SimilarityThreshold, cache.WithLogger(logger))
	}

	c.Indexer = indexer.NewIndexer(c.Storage, c.Embedder, c.VectorIndex, c.KeywordIndex, c.Engine, cfg.Ingest, cfg.Tenant, indexer.WithLogger(logger))

	if withLLM {
		c.Provider, err = llm.NewOpenAIProvider(cfg.LLM)
		if err != nil {
			return c, &config.ConfigurationError{Field: "llm", Reason: err.Error()}
		}
		opts := []answer.Option{answer.WithLogger(logger)}
		if c.Cache != nil {
			opts = append(opts, answer.WithCache(c.Cache))
		}
		c.Answers = answer.NewEngine(c.Engine, c.Provider, answer.Config{
			Tenant: cfg.Tenant,
			TopK:   cfg.Retrieval.TopK,
			Radius: cfg.Retrieval.Radius(),
			Model:  cfg.LLM.Model,
		}, opts...)
	}

	logger.Info("components initialized",
		zap.String("tenant", cfg.Tenant),
		zap.String("embedder", c.Embedder.Name()),
		zap.Bool("cache", c.Cache != nil),
		zap.Bool("generator", c.Answers != nil),
	)
	return c, nil
}
