// Package answer turns a user query into a generated answer: semantic cache check,
// hybrid retrieval, context window expansion, generation and cache write.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/ragtriever/internal/llm"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/window"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
)

// ErrRetrievalFailure means no context could be retrieved for the query; nothing was generated.
var ErrRetrievalFailure = errors.New("retrieval failure")

// SystemPrompt is sent with every generation request.
const SystemPrompt = "You are a Retrieval Augmented Generation chatbot. Try to answer the user query " +
	"with only the provided context. If the provided documentation does not provide enough information, " +
	"say so. Answer in the same language as the language used in the question."

// Retriever finds ranked matches and serves neighbouring chunks for expansion.
type Retriever interface {
	window.ChunkLookup
	Search(ctx context.Context, query, tenant string, limit int) ([]*models.MatchResult, error)
}

// Cache stores answers by query similarity.
type Cache interface {
	Lookup(ctx context.Context, query string) (*models.CacheEntry, error)
	Store(ctx context.Context, query string, matches []*models.MatchResult, answer string) error
}

// Config holds the per-engine retrieval settings.
type Config struct {
	Tenant string
	TopK   int
	Radius int
	Model  string
}

// Engine answers queries for one tenant.
type Engine struct {
	retriever Retriever
	expander  *window.Expander
	provider  llm.Provider
	cache     Cache
	config    Config
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the semantic cache. A nil cache disables it.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = utils.OrNop(l) }
}

// NewEngine creates an answer engine.
func NewEngine(retriever Retriever, provider llm.Provider, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		retriever: retriever,
		provider:  provider,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.expander = window.NewExpander(retriever, e.logger)
	return e
}

// Answer returns the cached answer for query when one is similar enough; otherwise it
// retrieves, expands and generates. An empty modelID uses the configured model.
// Provider failures yield a degraded answer carrying an apology and the matches.
func (e *Engine) Answer(ctx context.Context, query, modelID string) (*models.Answer, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if modelID == "" {
		modelID = e.config.Model
	}

	if e.cache != nil {
		entry, err := e.cache.Lookup(ctx, query)
		if err != nil {
			e.logger.Warn("cache lookup failed, continuing without cache", zap.Error(err))
		} else if entry != nil {
			return &models.Answer{
				Text:      entry.Answer,
				Matches:   entry.Matches,
				Cached:    true,
				Documents: window.Order(entry.Matches),
				QueryTime: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	matches, err := e.retriever.Search(ctx, query, e.config.Tenant, e.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrRetrievalFailure, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no matching chunks", ErrRetrievalFailure)
	}

	windows, err := e.expander.Expand(ctx, matches, e.config.Radius)
	if err != nil {
		return nil, fmt.Errorf("%w: expand context: %w", ErrRetrievalFailure, err)
	}
	order := window.Order(matches)
	contextText := window.Assemble(windows, order)

	ans := &models.Answer{
		Matches:      matches,
		Documents:    order,
		ContextChars: len(contextText),
	}

	text, err := e.provider.Complete(ctx, modelID, SystemPrompt, UserContent(contextText, query))
	if err != nil {
		e.logger.Error("generation failed", zap.String("model", modelID), zap.Error(err))
		ans.Text = Apology(err)
		ans.Degraded = true
		ans.QueryTime = time.Since(start).Milliseconds()
		return ans, nil
	}
	ans.Text = text

	if e.cache != nil {
		if err := e.cache.Store(ctx, query, matches, text); err != nil {
			e.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	ans.QueryTime = time.Since(start).Milliseconds()
	e.logger.Info("query answered",
		zap.Int("matches", len(matches)),
		zap.Int("documents", len(order)),
		zap.Int("context_chars", len(contextText)),
		zap.Int64("query_time_ms", ans.QueryTime))
	return ans, nil
}

// UserContent lays out the retrieved context followed by the raw query.
func UserContent(contextText, query string) string {
	return "Context:\n" + contextText + "\n\nQuestion: " + query
}

// Apology returns the user-visible text for a failed generation.
func Apology(err error) string {
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		return "Something went wrong while generating the answer. Please try again later."
	}
	switch perr.Kind {
	case llm.KindAuth:
		return "Something went wrong! Please check your API Key."
	case llm.KindRateLimit:
		return "The language model is rate limiting requests right now. Please try again in a moment."
	case llm.KindMalformed:
		return "The language model could not process this request. Try a shorter or simpler question."
	default:
		return "The language model is currently unavailable. Please try again later."
	}
}
