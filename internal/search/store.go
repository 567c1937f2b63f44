package search

import (
	"context"

	"github.com/hyperjump/ragtriever/internal/models"
)

// ChunkStore is the retrieval surface used to answer queries. GetChunk returns an
// error wrapping storage.ErrNotFound when no chunk exists at the position.
type ChunkStore interface {
	GetChunk(ctx context.Context, documentName string, position int) (*models.Chunk, error)
	Search(ctx context.Context, query, tenant string, limit int) ([]*models.MatchResult, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

var _ ChunkStore = (*Engine)(nil)
