package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/embedding"
	"github.com/hyperjump/ragtriever/internal/fileid"
	"github.com/hyperjump/ragtriever/internal/keyword"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/hyperjump/ragtriever/internal/vector"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
)

// ErrDocumentExists is returned when the tenant already has a document with the same name.
var ErrDocumentExists = errors.New("document already exists")

// Remover deletes a document from storage and every index.
type Remover interface {
	DeleteDocument(ctx context.Context, id string) error
}

// Indexer ingests documents for one tenant into storage, the keyword index and the vector index.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	remover      Remover
	config       config.IngestConfig
	tenant       string
	logger       *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// NewIndexer creates an indexer with the given dependencies. remover is used to delete
// replaced documents and to roll back failed ingests.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	remover Remover,
	cfg config.IngestConfig,
	tenant string,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		storage:      storage,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		remover:      remover,
		config:       cfg,
		tenant:       tenant,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Options overrides the configured chunking for one ingest. Zero values use the config.
type Options struct {
	Chunker      ChunkerKind
	Units        int
	Overlap      *int
	DocumentType string
}

// Report summarizes an ingest of several documents.
type Report struct {
	Ingested []*models.Document `json:"ingested"`
	Skipped  []string           `json:"skipped,omitempty"`
	Failed   map[string]string  `json:"failed,omitempty"`
}

// Chunker returns the chunker for opts, falling back to the configured defaults.
func (idx *Indexer) Chunker(opts Options) (*Chunker, error) {
	kind := opts.Chunker
	if kind == "" {
		kind = ChunkerKind(idx.config.Chunker)
	}
	units := opts.Units
	if units == 0 {
		units = idx.config.ChunkUnits
	}
	overlap := idx.config.Overlap()
	if opts.Overlap != nil {
		overlap = *opts.Overlap
	}
	return NewChunker(kind, units, overlap)
}

// Ingest stores every input. Documents whose name already exists are skipped; other
// per-document failures are recorded and do not stop the remaining documents.
func (idx *Indexer) Ingest(ctx context.Context, inputs []*models.DocumentInput, opts Options) (*Report, error) {
	chunker, err := idx.Chunker(opts)
	if err != nil {
		return nil, err
	}
	docType := opts.DocumentType
	if docType == "" {
		docType = idx.config.DocumentType
	}
	report := &Report{Ingested: []*models.Document{}}
	for _, in := range inputs {
		if in.Type == "" {
			in.Type = docType
		}
		doc, err := idx.IngestDocument(ctx, in, chunker)
		switch {
		case err == nil:
			report.Ingested = append(report.Ingested, doc)
		case errors.Is(err, ErrDocumentExists):
			idx.logger.Warn("document already exists, skipping", zap.String("doc_name", in.Name))
			report.Skipped = append(report.Skipped, in.Name)
		default:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			idx.logger.Error("ingest failed", zap.String("doc_name", in.Name), zap.Error(err))
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[in.Name] = err.Error()
		}
	}
	idx.logger.Info("ingest finished",
		zap.Int("ingested", len(report.Ingested)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// IngestDocument chunks, embeds and stores one document, then indexes its chunks.
// The stored chunk count is verified afterwards; on mismatch the document is removed
// again and an error returned.
func (idx *Indexer) IngestDocument(ctx context.Context, in *models.DocumentInput, chunker *Chunker) (*models.Document, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("document name cannot be empty")
	}
	if _, err := idx.storage.GetDocumentByName(ctx, idx.tenant, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentExists, name)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("look up document: %w", err)
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	doc := &models.Document{
		ID:      id,
		Tenant:  idx.tenant,
		Name:    name,
		Type:    in.Type,
		Link:    in.Link,
		Content: Preprocess(in.Content),
	}
	chunks, err := chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	doc.ChunkCount = len(chunks)
	for _, c := range chunks {
		if c.TokenCount > idx.config.MaxChunkTokens {
			idx.logger.Warn("chunk exceeds token limit, consider smaller chunks",
				zap.String("doc_name", name),
				zap.Int("position", c.Position),
				zap.Int("tokens", c.TokenCount),
				zap.Int("limit", idx.config.MaxChunkTokens))
		}
	}

	if err := idx.embed(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.index(ctx, doc, chunks); err != nil {
		idx.rollback(ctx, doc)
		return nil, err
	}
	stored, err := idx.storage.CountChunksByDocumentID(ctx, id)
	if err != nil {
		idx.rollback(ctx, doc)
		return nil, fmt.Errorf("verify chunks: %w", err)
	}
	if stored != len(chunks) {
		idx.rollback(ctx, doc)
		return nil, fmt.Errorf("document %q: stored %d chunks, expected %d", name, stored, len(chunks))
	}
	idx.logger.Info("document ingested",
		zap.String("document_id", id),
		zap.String("doc_name", name),
		zap.String("chunker", string(chunker.Kind())),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

func (idx *Indexer) index(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	if err := idx.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.keywordIndex.IndexChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	if err := idx.keywordIndex.IndexDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	ids := make([]string, len(chunks))
	vecs := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		vecs[i] = c.Embedding
	}
	if err := idx.vectorIndex.Add(ctx, idx.tenant, ids, vecs); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	return nil
}

func (idx *Indexer) rollback(ctx context.Context, doc *models.Document) {
	if err := idx.remover.DeleteDocument(context.WithoutCancel(ctx), doc.ID); err != nil {
		idx.logger.Error("rollback failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// embed fills chunk embeddings in batches whose token total stays within the configured
// limit. A single chunk over the limit is sent alone.
func (idx *Indexer) embed(ctx context.Context, chunks []*models.Chunk) error {
	for start := 0; start < len(chunks); {
		end, tokens := start, 0
		for end < len(chunks) && (end == start || tokens+chunks[end].TokenCount <= idx.config.BatchTokenLimit) {
			tokens += chunks[end].TokenCount
			end++
		}
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}
		vecs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for i, v := range vecs {
			chunks[start+i].Embedding = v
		}
		idx.logger.Debug("embedded batch", zap.Int("chunks", len(texts)), zap.Int("tokens", tokens))
		start = end
		if start < len(chunks) && idx.config.WaitBetweenBatches > 0 {
			if err := sleepCtx(ctx, idx.config.WaitBetweenBatches); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IngestPath reads a file or directory from disk and ingests it.
func (idx *Indexer) IngestPath(ctx context.Context, path string, opts Options) (*Report, error) {
	inputs, err := idx.readPath(path)
	if err != nil {
		return nil, err
	}
	return idx.Ingest(ctx, inputs, opts)
}

// readPath reads path and keys every document by its tenant-scoped file ID, so the same
// file always maps to the same document.
func (idx *Indexer) readPath(path string) ([]*models.DocumentInput, error) {
	inputs, err := ReadPath(path, idx.config.Extensions, idx.logger)
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		in.ID = fileid.DocID(idx.tenant, in.Link)
	}
	return inputs, nil
}

// LoadRequest is a load_data request: a reader with its inputs plus chunking overrides.
type LoadRequest struct {
	Reader       ReaderKind  `json:"reader"`
	Chunker      ChunkerKind `json:"chunker"`
	FileBytes    []string    `json:"fileBytes"`
	FileNames    []string    `json:"fileNames"`
	FilePath     string      `json:"filePath"`
	DocumentType string      `json:"document_type"`
	ChunkUnits   int         `json:"chunkUnits"`
	ChunkOverlap *int        `json:"chunkOverlap"`
}

// Load reads documents with the requested reader and ingests them.
func (idx *Indexer) Load(ctx context.Context, req *LoadRequest) (*Report, error) {
	opts := Options{
		Chunker:      req.Chunker,
		Units:        req.ChunkUnits,
		Overlap:      req.ChunkOverlap,
		DocumentType: req.DocumentType,
	}
	if _, err := idx.Chunker(opts); err != nil {
		return nil, err
	}
	switch req.Reader {
	case ReaderSimple, "":
		inputs, err := ReadSimple(req.FileBytes, req.FileNames, idx.config.Extensions, idx.logger)
		if err != nil {
			return nil, err
		}
		return idx.Ingest(ctx, inputs, opts)
	case ReaderPath:
		if req.FilePath == "" {
			return nil, fmt.Errorf("filePath is required for the path reader")
		}
		return idx.IngestPath(ctx, req.FilePath, opts)
	default:
		return nil, fmt.Errorf("unknown reader %q", req.Reader)
	}
}

// IndexFile ingests a file from a watched directory, replacing the document previously
// ingested from the same path. Unchanged files are left alone.
func (idx *Indexer) IndexFile(ctx context.Context, path string) error {
	inputs, err := idx.readPath(path)
	if err != nil {
		return err
	}
	if len(inputs) != 1 {
		return fmt.Errorf("not a single file: %s", path)
	}
	in := inputs[0]
	existing, err := idx.storage.GetDocument(ctx, in.ID)
	switch {
	case err == nil:
		if existing.Content == Preprocess(in.Content) {
			idx.logger.Debug("indexer skipping unchanged file", zap.String("path", path))
			return nil
		}
		if err := idx.remover.DeleteDocument(ctx, in.ID); err != nil {
			return fmt.Errorf("remove previous version: %w", err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("look up document: %w", err)
	}
	chunker, err := idx.Chunker(Options{})
	if err != nil {
		return err
	}
	in.Type = idx.config.DocumentType
	_, err = idx.IngestDocument(ctx, in, chunker)
	return err
}

// RemoveFile deletes the document ingested from path, if any.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	err = idx.remover.DeleteDocument(ctx, fileid.DocID(idx.tenant, absPath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
