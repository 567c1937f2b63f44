package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
)

// entryNamespace derives stable entry IDs so the same normalized query overwrites its entry.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragtriever:semantic-cache"))

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticCache answers repeated or paraphrased queries of one tenant from stored answers.
type SemanticCache struct {
	store     Store
	embedder  Embedder
	tenant    string
	threshold float64
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a SemanticCache.
type Option func(*SemanticCache)

// WithLogger sets the cache logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *SemanticCache) { c.logger = utils.OrNop(l) }
}

// New creates a cache over store. An entry hits only when its similarity to the query
// is strictly greater than threshold.
func New(store Store, embedder Embedder, tenant string, threshold float64, opts ...Option) *SemanticCache {
	c := &SemanticCache{
		store:     store,
		embedder:  embedder,
		tenant:    tenant,
		threshold: threshold,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStore opens the backing store selected by cfg.Backend. db is the main SQLite
// handle used by the sqlite backend.
func NewStore(ctx context.Context, cfg config.CacheConfig, db *sql.DB) (Store, error) {
	switch BackendKind(cfg.Backend) {
	case BackendSQLite, "":
		return NewSQLiteStore(db, cfg.TTL), nil
	case BackendRedis:
		rs, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Tenant returns the namespace the cache reads and writes.
func (c *SemanticCache) Tenant() string {
	return c.tenant
}

// Lookup returns the cached entry for query, or nil on a miss.
func (c *SemanticCache) Lookup(ctx context.Context, query string) (*models.CacheEntry, error) {
	normalized := utils.NormalizeQuery(query)
	if normalized == "" {
		return nil, nil
	}
	emb, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	entry, score, err := c.store.SimilaritySearch(ctx, emb, c.tenant, c.threshold)
	if err != nil {
		return nil, fmt.Errorf("cache search: %w", err)
	}
	if entry == nil {
		c.logger.Debug("cache miss", zap.String("query", normalized))
		return nil, nil
	}
	c.logger.Info("cache hit",
		zap.String("query", normalized),
		zap.String("cached_query", entry.Query),
		zap.Float64("similarity", score))
	return entry, nil
}

// Store records answer and matches for query. Storing the same normalized query again
// replaces the previous entry.
func (c *SemanticCache) Store(ctx context.Context, query string, matches []*models.MatchResult, answer string) error {
	normalized := utils.NormalizeQuery(query)
	if normalized == "" {
		return fmt.Errorf("cannot cache an empty query")
	}
	emb, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	entry := &models.CacheEntry{
		ID:        uuid.NewSHA1(entryNamespace, []byte(c.tenant+"\x00"+normalized)).String(),
		Tenant:    c.tenant,
		Query:     normalized,
		Embedding: emb,
		Answer:    answer,
		Matches:   matches,
		CreatedAt: c.now(),
	}
	if err := c.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Purge removes every entry of the tenant.
func (c *SemanticCache) Purge(ctx context.Context) error {
	return c.store.Purge(ctx, c.tenant)
}

// Count returns the number of entries stored for the tenant.
func (c *SemanticCache) Count(ctx context.Context) (int64, error) {
	return c.store.Count(ctx, c.tenant)
}
