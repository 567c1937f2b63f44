package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/ragtriever/internal/models"
)

const (
	kindChunk    = "chunk"
	kindDocument = "document"

	fieldKind    = "kind"
	fieldTenant  = "tenant"
	fieldDocType = "doc_type"
	fieldName    = "name"
	fieldContent = "content"

	deleteBatchSize = 1000
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If the path already exists, the existing index is opened and reused.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches the exact word.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldContent, text)
	docMapping.AddFieldMappingsAt(fieldName, text)

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	exact.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldKind, exact)
	docMapping.AddFieldMappingsAt(fieldTenant, exact)
	docMapping.AddFieldMappingsAt(fieldDocType, exact)

	im.DefaultMapping = docMapping
	return im
}

// nameText makes file-style names tokenizable: "setup_guide.md" -> "setup guide.md".
func nameText(name string) string {
	return strings.NewReplacer("_", " ", "/", " ").Replace(name)
}

// IndexChunks indexes chunks in one batch, replacing any existing entries with the same IDs.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, map[string]interface{}{
			fieldKind:    kindChunk,
			fieldTenant:  c.Tenant,
			fieldDocType: c.DocumentType,
			fieldName:    nameText(c.DocumentName),
			fieldContent: c.Content,
		}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// IndexDocument indexes a whole document for document search.
func (b *BleveIndex) IndexDocument(ctx context.Context, doc *models.Document) error {
	return b.index.Index(doc.ID, map[string]interface{}{
		fieldKind:    kindDocument,
		fieldTenant:  doc.Tenant,
		fieldDocType: doc.Type,
		fieldName:    nameText(doc.Name),
		fieldContent: doc.Content,
	})
}

func exactTerm(field, value string) blevequery.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

// scoped restricts q to one tenant and kind; filter clauses do not contribute to the score
// beyond a constant.
func scoped(q blevequery.Query, tenant, kind string, extra ...blevequery.Query) blevequery.Query {
	filters := []blevequery.Query{q, exactTerm(fieldTenant, tenant), exactTerm(fieldKind, kind)}
	filters = append(filters, extra...)
	return bleve.NewConjunctionQuery(filters...)
}

func fieldMatch(query, field string) blevequery.Query {
	q := bleve.NewMatchQuery(query)
	q.SetField(field)
	return q
}

// Search finds chunks of tenant matching query.
// Scoring: score = (nameScore * nameBoost) + contentScore, multiplied by a term coverage
// penalty for multi-term queries and by phraseBoost for phrase matches.
func (b *BleveIndex) Search(ctx context.Context, tenant, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	nameBoost := 1.0
	phraseBoost := 1.0
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
	}

	// Request enough from each so merged top "limit" is correct (same chunk can appear in both).
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	nameScores, err := b.hits(ctx, scoped(fieldMatch(query, fieldName), tenant, kindChunk), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve name search failed: %w", err)
	}
	contentScores, err := b.hits(ctx, scoped(fieldMatch(query, fieldContent), tenant, kindChunk), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve content search failed: %w", err)
	}

	terms := tokenizeQuery(query)
	coverage := make(map[string]int)
	phrase := make(map[string]float64)
	if len(terms) > 1 {
		for _, term := range terms {
			hits, err := b.hits(ctx, scoped(bleve.NewMatchQuery(term), tenant, kindChunk), reqSize)
			if err != nil {
				continue
			}
			for id := range hits {
				coverage[id]++
			}
		}
		if phraseBoost > 1.0 {
			pq := bleve.NewMatchPhraseQuery(query)
			pq.SetField(fieldContent)
			if hits, err := b.hits(ctx, scoped(pq, tenant, kindChunk), reqSize); err == nil {
				phrase = hits
			}
		}
	}

	scores := make(map[string]float64, len(contentScores)+len(nameScores))
	for id, s := range nameScores {
		scores[id] += s * nameBoost
	}
	for id, s := range contentScores {
		scores[id] += s
	}
	for id, base := range scores {
		// (matched/total)^2 so chunks matching every term outrank partial matches
		multiplier := 1.0
		if len(terms) > 1 {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			multiplier = c * c
		}
		if _, ok := phrase[id]; ok {
			multiplier *= phraseBoost
		}
		scores[id] = base * multiplier
	}
	return topResults(scores, limit), nil
}

// SearchDocuments finds documents of tenant matching query in name or content.
func (b *BleveIndex) SearchDocuments(ctx context.Context, tenant, query, docType string, limit int) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	var extra []blevequery.Query
	if docType != "" {
		extra = append(extra, exactTerm(fieldDocType, docType))
	}
	q := bleve.NewDisjunctionQuery(fieldMatch(query, fieldName), fieldMatch(query, fieldContent))
	scores, err := b.hits(ctx, scoped(q, tenant, kindDocument, extra...), limit)
	if err != nil {
		return nil, fmt.Errorf("Bleve document search failed: %w", err)
	}
	return topResults(scores, limit), nil
}

func (b *BleveIndex) hits(ctx context.Context, q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

// topResults sorts by score descending, ties by ID, and keeps at most limit.
func topResults(scores map[string]float64, limit int) []*Result {
	out := make([]*Result, 0, len(scores))
	for id, s := range scores {
		out = append(out, &Result{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Delete removes entries by ID.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// DeleteTenant removes every chunk and document entry of tenant.
func (b *BleveIndex) DeleteTenant(ctx context.Context, tenant string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := bleve.NewSearchRequest(exactTerm(fieldTenant, tenant))
		req.Size = deleteBatchSize
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve tenant scan failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		ids := make([]string, len(res.Hits))
		for i, hit := range res.Hits {
			ids[i] = hit.ID
		}
		if err := b.Delete(ctx, ids); err != nil {
			return err
		}
	}
}

// DocCount returns the total number of entries in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
