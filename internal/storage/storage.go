// Package storage defines the persistence interface for documents and chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/pkg/utils"
)

var (
	// ErrNotFound is returned when a document or chunk does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVectorizerMismatch is returned when the database was built with a different embedder.
	ErrVectorizerMismatch = errors.New("vectorizer mismatch")
)

// Storage defines document and chunk persistence operations. Every chunk and
// document belongs to exactly one tenant.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByName(ctx context.Context, tenant, name string) (*models.Document, error)
	UpdateChunkCount(ctx context.Context, id string, count int) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, tenant, docType string) ([]*models.Document, error)
	DocumentTypes(ctx context.Context, tenant string) ([]string, error)

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunkByPosition(ctx context.Context, tenant, docName string, position int) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	CountChunksByDocumentID(ctx context.Context, docID string) (int, error)
	ChunkIDsByTenant(ctx context.Context, tenant string) ([]string, error)
	EachChunkEmbedding(ctx context.Context, fn func(tenant, id string, embedding []float32) error) error

	// Tenant operations
	ResetTenant(ctx context.Context, tenant string) error
	CountDocuments(ctx context.Context, tenant string) (int64, error)
	CountChunks(ctx context.Context, tenant string) (int64, error)

	// Schema
	EnsureVectorizer(ctx context.Context, name string) error
	SchemaVersion(ctx context.Context) (int, error)
	Ping(ctx context.Context) error

	Close() error
}

// Class kinds used by ClassName.
const (
	ClassDocument = "Document"
	ClassChunk    = "Chunk"
	ClassCache    = "Cache"
)

// ClassName returns the collection name for kind under the given vectorizer,
// e.g. ClassName(ClassChunk, "openai:text-embedding-ada-002") is
// "Chunk_openai_text_embedding_ada_002". All class names go through here.
func ClassName(kind, vectorizer string) string {
	return kind + "_" + utils.StripNonAlnum(vectorizer)
}
