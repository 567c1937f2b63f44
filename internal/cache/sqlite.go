package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/pkg/utils"
)

// SQLiteStore keeps cache entries in the semantic_cache table of the main database.
// Similarity is computed in process over the tenant's rows.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore uses db, which must already carry the semantic_cache table. A
// positive ttl hides entries older than ttl and deletes them on the next write.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}
}

// SimilaritySearch scans the tenant's unexpired entries for the best match above threshold.
func (s *SQLiteStore) SimilaritySearch(ctx context.Context, embedding []float32, tenant string, threshold float64) (*models.CacheEntry, float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, created_at FROM semantic_cache WHERE tenant = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, 0, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	now := s.now()
	b := best{threshold: threshold}
	for rows.Next() {
		var (
			id        string
			blob      []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &blob, &createdAt); err != nil {
			return nil, 0, err
		}
		if expired(createdAt, s.ttl, now) {
			continue
		}
		emb, err := utils.DecodeFloat32s(blob)
		if err != nil {
			return nil, 0, fmt.Errorf("cache entry %s: %w", id, err)
		}
		b.offer(id, embedding, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if !b.found {
		return nil, 0, nil
	}
	entry, err := s.get(ctx, b.id)
	if err != nil {
		return nil, 0, err
	}
	return entry, b.score, nil
}

func (s *SQLiteStore) get(ctx context.Context, id string) (*models.CacheEntry, error) {
	var (
		e       models.CacheEntry
		blob    []byte
		matches string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant, query, embedding, answer, matches, created_at FROM semantic_cache WHERE id = ?`, id).
		Scan(&e.ID, &e.Tenant, &e.Query, &blob, &e.Answer, &matches, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache entry %s disappeared", id)
	}
	if err != nil {
		return nil, err
	}
	if e.Embedding, err = utils.DecodeFloat32s(blob); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(matches), &e.Matches); err != nil {
		return nil, fmt.Errorf("decode cached matches: %w", err)
	}
	return &e, nil
}

// Upsert writes entry and drops the tenant's expired entries.
func (s *SQLiteStore) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	matches, err := json.Marshal(entry.Matches)
	if err != nil {
		return fmt.Errorf("encode matches: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if s.ttl > 0 {
		if err := s.deleteExpired(ctx, tx, entry.Tenant); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO semantic_cache (id, tenant, query, embedding, answer, matches, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Tenant, entry.Query, utils.EncodeFloat32s(entry.Embedding), entry.Answer,
		string(matches), entry.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) deleteExpired(ctx context.Context, tx *sql.Tx, tenant string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, created_at FROM semantic_cache WHERE tenant = ?`, tenant)
	if err != nil {
		return err
	}
	now := s.now()
	var stale []string
	for rows.Next() {
		var id string
		var createdAt time.Time
		if err := rows.Scan(&id, &createdAt); err != nil {
			rows.Close()
			return err
		}
		if expired(createdAt, s.ttl, now) {
			stale = append(stale, id)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM semantic_cache WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// Purge removes every entry of tenant.
func (s *SQLiteStore) Purge(ctx context.Context, tenant string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM semantic_cache WHERE tenant = ?`, tenant)
	return err
}

// Count returns the number of stored entries of tenant, expired ones included until purged.
func (s *SQLiteStore) Count(ctx context.Context, tenant string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM semantic_cache WHERE tenant = ?`, tenant).Scan(&n)
	return n, err
}

// Close is a no-op; the database handle belongs to storage.
func (s *SQLiteStore) Close() error {
	return nil
}
