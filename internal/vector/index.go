// Package vector provides a tenant-namespaced vector index and similarity helpers.
package vector

import "context"

// Index stores chunk embeddings per namespace and answers nearest-neighbour queries.
type Index interface {
	// Add inserts or replaces vectors under namespace.
	Add(ctx context.Context, namespace string, ids []string, vectors [][]float32) error
	Search(ctx context.Context, namespace string, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, ids []string) error
	// RemoveNamespace drops every vector stored under namespace.
	RemoveNamespace(ctx context.Context, namespace string) error
	Save(path string) error
	Load(path string) error
	Size() int
	NamespaceSize(namespace string) int
	Close() error
}

// Result is a single vector search hit; ID is a chunk ID.
type Result struct {
	ID    string
	Score float64 // cosine similarity for normalized vectors
}
