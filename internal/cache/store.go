// Package cache implements the semantic answer cache and its backing stores.
package cache

import (
	"context"
	"time"

	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/vector"
)

// BackendKind selects a cache backing store.
type BackendKind string

const (
	BackendSQLite BackendKind = "sqlite"
	BackendRedis  BackendKind = "redis"
)

// Store persists cache entries per tenant and finds the most similar one.
type Store interface {
	// SimilaritySearch returns the tenant's entry most similar to embedding when its cosine
	// similarity is strictly greater than threshold, or nil when none qualifies.
	SimilaritySearch(ctx context.Context, embedding []float32, tenant string, threshold float64) (*models.CacheEntry, float64, error)
	// Upsert stores entry, replacing any entry with the same ID.
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	// Purge removes every entry of tenant.
	Purge(ctx context.Context, tenant string) error
	Count(ctx context.Context, tenant string) (int64, error)
	Close() error
}

// best tracks the highest-scoring candidate above a threshold; the first of equal scores wins.
type best struct {
	threshold float64
	id        string
	score     float64
	found     bool
}

func (b *best) offer(id string, query, candidate []float32) {
	score := vector.Cosine(query, candidate)
	if score <= b.threshold {
		return
	}
	if !b.found || score > b.score {
		b.id, b.score, b.found = id, score, true
	}
}

func expired(createdAt time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(createdAt) >= ttl
}
