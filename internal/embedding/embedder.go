// Package embedding provides text embedders (OpenAI-compatible HTTP, ONNX, mock) and caching.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragtriever/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the vectorizer; stored data is only valid for the embedder that wrote it.
	Name() string
	Close() error
}

// Kind selects an embedder variant.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindONNX   Kind = "onnx"
	KindMock   Kind = "mock"
)

// Kinds lists every embedder variant in display order.
var Kinds = []Kind{KindOpenAI, KindONNX, KindMock}

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch Kind(cfg.Provider) {
	case KindOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: cfg.Dimensions,
		})
	case KindONNX:
		e, err = NewONNXEmbedder(ONNXConfig{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
	case KindMock:
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("embedder initialized", zap.String("vectorizer", e.Name()), zap.Int("cache_size", cfg.CacheSize))
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
