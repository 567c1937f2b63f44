package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each entry in a hash and a per-tenant set of entry IDs. Expiry
// uses Redis key TTLs; IDs of expired hashes are pruned from the set on lookup.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to addr and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, addr, prefix string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisStore) entryKey(tenant, id string) string {
	return r.prefix + ":" + tenant + ":entry:" + id
}

func (r *RedisStore) indexKey(tenant string) string {
	return r.prefix + ":" + tenant + ":ids"
}

// SimilaritySearch loads the tenant's entries and returns the best match above threshold.
func (r *RedisStore) SimilaritySearch(ctx context.Context, embedding []float32, tenant string, threshold float64) (*models.CacheEntry, float64, error) {
	ids, err := r.rdb.SMembers(ctx, r.indexKey(tenant)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.entryKey(tenant, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, fmt.Errorf("redis hgetall: %w", err)
	}

	b := best{threshold: threshold}
	fields := make(map[string]map[string]string, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		emb, err := utils.DecodeFloat32s([]byte(h["embedding"]))
		if err != nil {
			return nil, 0, fmt.Errorf("cache entry %s: %w", ids[i], err)
		}
		fields[ids[i]] = h
		b.offer(ids[i], embedding, emb)
	}
	if len(stale) > 0 {
		_ = r.rdb.SRem(ctx, r.indexKey(tenant), stale...).Err()
	}
	if !b.found {
		return nil, 0, nil
	}
	entry, err := decodeEntry(b.id, tenant, fields[b.id])
	if err != nil {
		return nil, 0, err
	}
	return entry, b.score, nil
}

func decodeEntry(id, tenant string, h map[string]string) (*models.CacheEntry, error) {
	e := &models.CacheEntry{ID: id, Tenant: tenant, Query: h["query"], Answer: h["answer"]}
	var err error
	if e.Embedding, err = utils.DecodeFloat32s([]byte(h["embedding"])); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, h["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(h["matches"]), &e.Matches); err != nil {
		return nil, fmt.Errorf("decode cached matches: %w", err)
	}
	return e, nil
}

// Upsert writes entry as a hash, registers its ID and applies the TTL.
func (r *RedisStore) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	matches, err := json.Marshal(entry.Matches)
	if err != nil {
		return fmt.Errorf("encode matches: %w", err)
	}
	key := r.entryKey(entry.Tenant, entry.ID)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		"query":      entry.Query,
		"answer":     entry.Answer,
		"matches":    string(matches),
		"embedding":  utils.EncodeFloat32s(entry.Embedding),
		"created_at": entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.SAdd(ctx, r.indexKey(entry.Tenant), entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}

// Purge deletes every entry of tenant and its ID set.
func (r *RedisStore) Purge(ctx context.Context, tenant string) error {
	ids, err := r.rdb.SMembers(ctx, r.indexKey(tenant)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.entryKey(tenant, id))
	}
	keys = append(keys, r.indexKey(tenant))
	return r.rdb.Del(ctx, keys...).Err()
}

// Count returns the number of registered entry IDs of tenant.
func (r *RedisStore) Count(ctx context.Context, tenant string) (int64, error) {
	return r.rdb.SCard(ctx, r.indexKey(tenant)).Result()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
