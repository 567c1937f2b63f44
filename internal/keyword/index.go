// Package keyword provides tenant-scoped keyword (BM25) indexing and search over
// chunks and documents.
package keyword

import (
	"context"

	"github.com/hyperjump/ragtriever/internal/models"
)

// SearchOptions optional parameters for chunk search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution from matches in the document name.
	// Values > 1 make name matches rank higher (e.g. 2.0). Use 1.0 for no boost.
	NameBoost float64
	// PhraseBoost multiplies the score when query terms appear together as a phrase.
	PhraseBoost float64
}

// Index defines keyword indexing and search. Every query is restricted to one tenant.
type Index interface {
	IndexChunks(ctx context.Context, chunks []*models.Chunk) error
	IndexDocument(ctx context.Context, doc *models.Document) error
	// Search returns chunk hits for query.
	Search(ctx context.Context, tenant, query string, limit int, opts *SearchOptions) ([]*Result, error)
	// SearchDocuments returns document hits; an empty docType matches every type.
	SearchDocuments(ctx context.Context, tenant, query, docType string, limit int) ([]*Result, error)
	Delete(ctx context.Context, ids []string) error
	DeleteTenant(ctx context.Context, tenant string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit. ID is a chunk or document ID.
type Result struct {
	ID    string
	Score float64
}
