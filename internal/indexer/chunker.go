// Package indexer reads, chunks, embeds and stores documents for retrieval.
package indexer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/ragtriever/internal/embedding"
	"github.com/hyperjump/ragtriever/internal/models"
)

// ErrInvalidChunking is returned for chunk settings that cannot make progress.
var ErrInvalidChunking = errors.New("invalid chunking")

// ChunkerKind selects how text is split into units before windowing.
type ChunkerKind string

const (
	ChunkerWord     ChunkerKind = "word"
	ChunkerSentence ChunkerKind = "sentence"
)

// ChunkerKinds lists every chunker variant in display order.
var ChunkerKinds = []ChunkerKind{ChunkerWord, ChunkerSentence}

// Chunker splits text into overlapping windows of units (words or sentences).
type Chunker struct {
	kind    ChunkerKind
	units   int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap, both in units.
func NewChunker(kind ChunkerKind, units, overlap int) (*Chunker, error) {
	switch kind {
	case ChunkerWord, ChunkerSentence:
	default:
		return nil, fmt.Errorf("%w: unknown chunker %q", ErrInvalidChunking, kind)
	}
	if units <= 0 {
		return nil, fmt.Errorf("%w: units must be positive, got %d", ErrInvalidChunking, units)
	}
	if overlap < 0 || overlap >= units {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, units)
	}
	return &Chunker{kind: kind, units: units, overlap: overlap}, nil
}

// Kind returns the chunker variant.
func (c *Chunker) Kind() ChunkerKind { return c.kind }

// Split returns the chunk texts in document order. Empty text yields nil.
func (c *Chunker) Split(text string) []string {
	var units []string
	if c.kind == ChunkerSentence {
		units = splitSentences(text)
	} else {
		units = strings.Fields(text)
	}
	if len(units) == 0 {
		return nil
	}
	var chunks []string
	step := c.units - c.overlap
	for i := 0; i < len(units); i += step {
		end := i + c.units
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, strings.Join(units[i:end], " "))
		if end >= len(units) {
			break
		}
	}
	return chunks
}

// Chunk splits doc.Content into chunks with dense positions starting at 0.
// A document without any text is ErrInvalidChunking.
func (c *Chunker) Chunk(doc *models.Document) ([]*models.Chunk, error) {
	pieces := c.Split(doc.Content)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: document %q has no text", ErrInvalidChunking, doc.Name)
	}
	chunks := make([]*models.Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = &models.Chunk{
			ID:           uuid.New().String(),
			Tenant:       doc.Tenant,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			DocumentType: doc.Type,
			Position:     i,
			Content:      text,
			TokenCount:   embedding.CountTokens(text),
		}
	}
	return chunks, nil
}

// splitSentences groups words into sentences ending in '.', '!' or '?'.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   []string
	)
	for _, w := range strings.Fields(text) {
		current = append(current, w)
		if strings.ContainsAny(w[len(w)-1:], ".!?") {
			sentences = append(sentences, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}
	return sentences
}
