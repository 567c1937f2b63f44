package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are append-only. Never edit an entry once released; add a new one.
var migrations = [...]migration{
	{
		version: 1,
		name:    "documents_and_chunks",
		stmts: []string{
			`CREATE TABLE documents (
				id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				name TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT '',
				link TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE UNIQUE INDEX idx_documents_tenant_name ON documents(tenant, name)`,
			`CREATE INDEX idx_documents_tenant_type ON documents(tenant, type)`,
			`CREATE TABLE chunks (
				id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				document_id TEXT NOT NULL,
				doc_name TEXT NOT NULL,
				doc_type TEXT NOT NULL DEFAULT '',
				position INTEGER NOT NULL,
				content TEXT NOT NULL,
				token_count INTEGER NOT NULL DEFAULT 0,
				embedding BLOB
			)`,
			`CREATE INDEX idx_chunks_document_id ON chunks(document_id)`,
			`CREATE UNIQUE INDEX idx_chunks_tenant_doc_position ON chunks(tenant, doc_name, position)`,
			`CREATE TABLE meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "semantic_cache",
		stmts: []string{
			`CREATE TABLE semantic_cache (
				id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				query TEXT NOT NULL,
				embedding BLOB NOT NULL,
				answer TEXT NOT NULL,
				matches TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX idx_semantic_cache_tenant ON semantic_cache(tenant, created_at)`,
		},
	},
}

// migrate applies every migration newer than the recorded schema version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}
