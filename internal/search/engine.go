// Package search provides the hybrid (keyword + semantic) chunk store used to answer queries.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/embedding"
	"github.com/hyperjump/ragtriever/internal/keyword"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/hyperjump/ragtriever/internal/vector"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
)

// documentSearchLimit caps admin document search results.
const documentSearchLimit = 20

// Engine runs hybrid search over one tenant's chunks and owns document removal
// across storage and both indexes.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	config       *config.RetrievalConfig
	tenant       string
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = utils.OrNop(l) }
}

// NewEngine creates a search engine for tenant with the given dependencies.
func NewEngine(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	cfg *config.RetrievalConfig,
	tenant string,
	opts ...Option,
) *Engine {
	e := &Engine{
		storage:      storage,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		config:       cfg,
		tenant:       tenant,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tenant returns the tenant the engine serves.
func (e *Engine) Tenant() string {
	return e.tenant
}

// Search runs keyword and semantic search concurrently, fuses the scores with the
// configured alpha and returns the top limit chunks of tenant.
func (e *Engine) Search(ctx context.Context, query, tenant string, limit int) ([]*models.MatchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	candidates := e.config.TopKCandidates
	if candidates < limit {
		candidates = limit
	}

	var (
		keywordResults  []*keyword.Result
		semanticResults []*vector.Result
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results, err := e.keywordIndex.Search(ctx, tenant, query, candidates, &keyword.SearchOptions{NameBoost: e.config.NameBoost})
		if err != nil {
			errChan <- fmt.Errorf("keyword search failed: %w", err)
			return
		}
		keywordResults = results
	}()
	go func() {
		defer wg.Done()
		queryEmbedding, err := e.embedder.Embed(ctx, query)
		if err != nil {
			errChan <- fmt.Errorf("embedding failed: %w", err)
			return
		}
		results, err := e.vectorIndex.Search(ctx, tenant, queryEmbedding, candidates)
		if err != nil {
			errChan <- fmt.Errorf("vector search failed: %w", err)
			return
		}
		semanticResults = results
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	alpha := e.config.HybridAlpha
	fused := Fuse(NormalizeKeywordScores(keywordResults), NormalizeSemanticScores(semanticResults), 1-alpha, alpha)

	matches := make([]*models.MatchResult, 0, limit)
	for _, r := range fused {
		if len(matches) == limit {
			break
		}
		chunk, err := e.storage.GetChunk(ctx, r.ChunkID)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Debug("stale index entry", zap.String("chunk_id", r.ChunkID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", r.ChunkID, err)
		}
		matches = append(matches, &models.MatchResult{
			Chunk:         chunk,
			Score:         r.Score,
			KeywordScore:  r.KeywordScore,
			SemanticScore: r.SemanticScore,
		})
	}
	e.logger.Debug("search completed",
		zap.String("tenant", tenant),
		zap.Int("keyword_hits", len(keywordResults)),
		zap.Int("semantic_hits", len(semanticResults)),
		zap.Int("matches", len(matches)))
	return matches, nil
}

// GetChunk returns the chunk at position of the named document in the engine's tenant.
func (e *Engine) GetChunk(ctx context.Context, documentName string, position int) (*models.Chunk, error) {
	return e.storage.GetChunkByPosition(ctx, e.tenant, documentName, position)
}

// GetDocument returns a document of the engine's tenant.
func (e *Engine) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := e.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Tenant != e.tenant {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return doc, nil
}

// GetDocumentByName returns the document of the engine's tenant with the given name.
func (e *Engine) GetDocumentByName(ctx context.Context, name string) (*models.Document, error) {
	return e.storage.GetDocumentByName(ctx, e.tenant, name)
}

// DeleteDocument removes a document with its chunks, keyword entries and vectors.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	doc, err := e.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	chunks, err := e.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := e.keywordIndex.Delete(ctx, append(ids, id)); err != nil {
		return fmt.Errorf("delete keyword entries: %w", err)
	}
	if err := e.vectorIndex.Remove(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := e.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	e.logger.Info("document deleted",
		zap.String("document_id", id),
		zap.String("doc_name", doc.Name),
		zap.Int("chunks", len(ids)))
	return nil
}

// ListDocuments returns the tenant's documents, optionally filtered by type.
func (e *Engine) ListDocuments(ctx context.Context, docType string) ([]*models.Document, error) {
	return e.storage.ListDocuments(ctx, e.tenant, docType)
}

// DocumentTypes returns the distinct document types of the tenant.
func (e *Engine) DocumentTypes(ctx context.Context) ([]string, error) {
	return e.storage.DocumentTypes(ctx, e.tenant)
}

// SearchDocuments runs a keyword search over document names and text. An empty query
// lists documents instead.
func (e *Engine) SearchDocuments(ctx context.Context, query, docType string) ([]*models.Document, error) {
	if query == "" {
		docs, err := e.ListDocuments(ctx, docType)
		if err != nil {
			return nil, err
		}
		if len(docs) > documentSearchLimit {
			docs = docs[:documentSearchLimit]
		}
		return docs, nil
	}
	hits, err := e.keywordIndex.SearchDocuments(ctx, e.tenant, query, docType, documentSearchLimit)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(hits))
	for _, h := range hits {
		doc, err := e.storage.GetDocument(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Reset removes every document, chunk and index entry of the tenant.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.keywordIndex.DeleteTenant(ctx, e.tenant); err != nil {
		return fmt.Errorf("reset keyword index: %w", err)
	}
	if err := e.vectorIndex.RemoveNamespace(ctx, e.tenant); err != nil {
		return fmt.Errorf("reset vector index: %w", err)
	}
	if err := e.storage.ResetTenant(ctx, e.tenant); err != nil {
		return fmt.Errorf("reset storage: %w", err)
	}
	e.logger.Info("tenant reset", zap.String("tenant", e.tenant))
	return nil
}

// SyncVectorIndex rebuilds the vector index from stored embeddings when it does not
// hold exactly the tenant's chunks, e.g. after a crash before the index was saved.
func (e *Engine) SyncVectorIndex(ctx context.Context) error {
	count, err := e.storage.CountChunks(ctx, e.tenant)
	if err != nil {
		return err
	}
	if int64(e.vectorIndex.NamespaceSize(e.tenant)) == count {
		return nil
	}
	e.logger.Info("rebuilding vector index",
		zap.Int64("chunks", count),
		zap.Int("indexed", e.vectorIndex.NamespaceSize(e.tenant)))
	if err := e.vectorIndex.RemoveNamespace(ctx, e.tenant); err != nil {
		return err
	}
	return e.storage.EachChunkEmbedding(ctx, func(tenant, id string, emb []float32) error {
		if tenant != e.tenant {
			return nil
		}
		return e.vectorIndex.Add(ctx, tenant, []string{id}, [][]float32{emb})
	})
}

// VectorIndexSize returns the number of vectors in the semantic index across tenants.
func (e *Engine) VectorIndexSize() int {
	return e.vectorIndex.Size()
}

// Status summarizes what the tenant has stored.
type Status struct {
	Tenant          string           `json:"tenant"`
	Vectorizer      string           `json:"vectorizer"`
	Documents       int64            `json:"documents"`
	Chunks          int64            `json:"chunks"`
	VectorIndexSize int              `json:"vector_index_size"`
	KeywordEntries  uint64           `json:"keyword_entries"`
	SchemaVersion   int              `json:"schema_version"`
	Classes         map[string]int64 `json:"classes"`
}

// Status reports document, chunk and index counts for the tenant.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	docs, err := e.storage.CountDocuments(ctx, e.tenant)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := e.storage.CountChunks(ctx, e.tenant)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	kw, err := e.keywordIndex.DocCount()
	if err != nil {
		return nil, fmt.Errorf("keyword index count: %w", err)
	}
	version, err := e.storage.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	vectorizer := e.embedder.Name()
	return &Status{
		Tenant:          e.tenant,
		Vectorizer:      vectorizer,
		Documents:       docs,
		Chunks:          chunks,
		VectorIndexSize: e.vectorIndex.NamespaceSize(e.tenant),
		KeywordEntries:  kw,
		SchemaVersion:   version,
		Classes: map[string]int64{
			storage.ClassName(storage.ClassDocument, vectorizer): docs,
			storage.ClassName(storage.ClassChunk, vectorizer):    chunks,
		},
	}, nil
}
