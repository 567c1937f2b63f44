package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/pkg/utils"
)

const metaKeyVectorizer = "vectorizer"

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and applies pending migrations.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle so the SQLite cache backend can share it.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, tenant, name, type, link, content, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Tenant, doc.Name, doc.Type, doc.Link, doc.Content, doc.ChunkCount, doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant, name, type, link, content, chunk_count, created_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// GetDocumentByName returns the tenant's document with the given name.
func (s *SQLiteStorage) GetDocumentByName(ctx context.Context, tenant, name string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant, name, type, link, content, chunk_count, created_at
		 FROM documents WHERE tenant = ? AND name = ?`, tenant, name)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", name, ErrNotFound)
	}
	return doc, err
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var doc models.Document
	if err := row.Scan(&doc.ID, &doc.Tenant, &doc.Name, &doc.Type, &doc.Link, &doc.Content,
		&doc.ChunkCount, &doc.CreatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateChunkCount sets the stored chunk count of a document.
func (s *SQLiteStorage) UpdateChunkCount(ctx context.Context, id string, count int) error {
	result, err := s.db.ExecContext(ctx, `UPDATE documents SET chunk_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document and its chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDocuments returns the tenant's documents without their content, newest first.
// An empty docType lists every type.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, tenant, docType string) ([]*models.Document, error) {
	query := `SELECT id, tenant, name, type, link, chunk_count, created_at FROM documents WHERE tenant = ?`
	args := []any{tenant}
	if docType != "" {
		query += ` AND type = ?`
		args = append(args, docType)
	}
	query += ` ORDER BY created_at DESC, name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Tenant, &doc.Name, &doc.Type, &doc.Link, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DocumentTypes returns the distinct document types of the tenant, sorted.
func (s *SQLiteStorage) DocumentTypes(ctx context.Context, tenant string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT type FROM documents WHERE tenant = ? ORDER BY type`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// BatchCreateChunks inserts multiple chunks in a transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, tenant, document_id, doc_name, doc_type, position, content, token_count, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		var emb []byte
		if len(c.Embedding) > 0 {
			emb = utils.EncodeFloat32s(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Tenant, c.DocumentID, c.DocumentName, c.DocumentType,
			c.Position, c.Content, c.TokenCount, emb); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const chunkColumns = `id, tenant, document_id, doc_name, doc_type, position, content, token_count`

func scanChunk(scan func(dest ...any) error) (*models.Chunk, error) {
	var c models.Chunk
	if err := scan(&c.ID, &c.Tenant, &c.DocumentID, &c.DocumentName, &c.DocumentType,
		&c.Position, &c.Content, &c.TokenCount); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	return c, err
}

// GetChunkByPosition returns the chunk at position within the named document.
func (s *SQLiteStorage) GetChunkByPosition(ctx context.Context, tenant, docName string, position int) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE tenant = ? AND doc_name = ? AND position = ?`,
		tenant, docName, position)
	c, err := scanChunk(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %q#%d: %w", docName, position, ErrNotFound)
	}
	return c, err
}

// GetChunksByDocumentID returns all chunks for a document ordered by position.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY position`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunksByDocumentID returns how many chunks are stored for a document.
func (s *SQLiteStorage) CountChunksByDocumentID(ctx context.Context, docID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, docID).Scan(&n)
	return n, err
}

// ChunkIDsByTenant returns every chunk ID of the tenant.
func (s *SQLiteStorage) ChunkIDsByTenant(ctx context.Context, tenant string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE tenant = ?`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EachChunkEmbedding calls fn for every stored chunk embedding. Used to rebuild the vector index.
func (s *SQLiteStorage) EachChunkEmbedding(ctx context.Context, fn func(tenant, id string, embedding []float32) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant, id, embedding FROM chunks WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tenant, id string
		var blob []byte
		if err := rows.Scan(&tenant, &id, &blob); err != nil {
			return err
		}
		emb, err := utils.DecodeFloat32s(blob)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", id, err)
		}
		if err := fn(tenant, id, emb); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ResetTenant removes every document, chunk and cache entry of the tenant.
func (s *SQLiteStorage) ResetTenant(ctx context.Context, tenant string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM chunks WHERE tenant = ?`,
		`DELETE FROM documents WHERE tenant = ?`,
		`DELETE FROM semantic_cache WHERE tenant = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, tenant); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountDocuments returns the number of documents of the tenant.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, tenant string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE tenant = ?`, tenant).Scan(&count)
	return count, err
}

// CountChunks returns the number of chunks of the tenant.
func (s *SQLiteStorage) CountChunks(ctx context.Context, tenant string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE tenant = ?`, tenant).Scan(&count)
	return count, err
}

// EnsureVectorizer records name as the database's vectorizer on first use and
// returns ErrVectorizerMismatch when a different one was recorded earlier.
func (s *SQLiteStorage) EnsureVectorizer(ctx context.Context, name string) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeyVectorizer).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, metaKeyVectorizer, name)
		return err
	case err != nil:
		return err
	case current != name:
		return fmt.Errorf("%w: database uses %q, configured %q", ErrVectorizerMismatch, current, name)
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
