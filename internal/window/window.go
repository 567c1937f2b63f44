// Package window expands sparse chunk matches into ordered per-document context windows.
package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	chunkSeparator    = " "
	documentSeparator = "\n\n"
	maxConcurrentDocs = 8
)

// ChunkLookup fetches one chunk by document name and position. A missing chunk is
// reported with an error wrapping storage.ErrNotFound.
type ChunkLookup interface {
	GetChunk(ctx context.Context, documentName string, position int) (*models.Chunk, error)
}

// ContextWindow holds the matched and neighbouring chunks of one document.
type ContextWindow struct {
	DocumentName string
	chunks       map[int]*models.Chunk
	matched      map[int]bool
}

func newContextWindow(name string) *ContextWindow {
	return &ContextWindow{
		DocumentName: name,
		chunks:       make(map[int]*models.Chunk),
		matched:      make(map[int]bool),
	}
}

// Positions returns the window's chunk positions in ascending order.
func (w *ContextWindow) Positions() []int {
	positions := make([]int, 0, len(w.chunks))
	for p := range w.chunks {
		positions = append(positions, p)
	}
	sort.Ints(positions)
	return positions
}

// Chunks returns the window's chunks in ascending position order.
func (w *ContextWindow) Chunks() []*models.Chunk {
	positions := w.Positions()
	out := make([]*models.Chunk, len(positions))
	for i, p := range positions {
		out[i] = w.chunks[p]
	}
	return out
}

// Matched reports whether position came from search rather than expansion.
func (w *ContextWindow) Matched(position int) bool {
	return w.matched[position]
}

// Len returns the number of chunks in the window.
func (w *ContextWindow) Len() int {
	return len(w.chunks)
}

// Text concatenates the chunk texts in ascending position order.
func (w *ContextWindow) Text() string {
	chunks := w.Chunks()
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, chunkSeparator)
}

// Expander builds context windows from ranked matches.
type Expander struct {
	store  ChunkLookup
	logger *zap.Logger
}

// NewExpander creates an Expander reading neighbours from store.
func NewExpander(store ChunkLookup, logger *zap.Logger) *Expander {
	return &Expander{store: store, logger: utils.OrNop(logger)}
}

// Order returns the distinct document names of matches in first-seen (ranked) order.
func Order(matches []*models.MatchResult) []string {
	seen := make(map[string]bool)
	var order []string
	for _, m := range matches {
		if m == nil || m.Chunk == nil {
			continue
		}
		name := m.Chunk.DocumentName
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	return order
}

// Expand groups matches by document and adds every chunk within radius positions of a
// matched one. Each candidate position is looked up at most once per document and
// never when it is negative or already matched. Missing chunks are skipped; any other
// lookup error aborts the expansion.
func (e *Expander) Expand(ctx context.Context, matches []*models.MatchResult, radius int) (map[string]*ContextWindow, error) {
	if radius < 0 {
		return nil, fmt.Errorf("window radius must not be negative, got %d", radius)
	}
	order := Order(matches)
	windows := make([]*ContextWindow, len(order))
	index := make(map[string]int, len(order))
	for i, name := range order {
		windows[i] = newContextWindow(name)
		index[name] = i
	}
	for _, m := range matches {
		if m == nil || m.Chunk == nil {
			continue
		}
		w := windows[index[m.Chunk.DocumentName]]
		if _, ok := w.chunks[m.Chunk.Position]; !ok {
			w.chunks[m.Chunk.Position] = m.Chunk
			w.matched[m.Chunk.Position] = true
		}
	}

	if radius > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentDocs)
		for _, w := range windows {
			w := w
			g.Go(func() error {
				return e.fill(gctx, w, radius)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make(map[string]*ContextWindow, len(windows))
	for _, w := range windows {
		out[w.DocumentName] = w
	}
	return out, nil
}

// fill fetches the neighbours of w's matched positions in ascending order.
func (e *Expander) fill(ctx context.Context, w *ContextWindow, radius int) error {
	matched := make([]int, 0, len(w.matched))
	for p := range w.matched {
		matched = append(matched, p)
	}
	sort.Ints(matched)

	fetched := make(map[int]bool)
	for _, p := range matched {
		for pos := p - radius; pos <= p+radius; pos++ {
			if pos < 0 || w.matched[pos] || fetched[pos] {
				continue
			}
			fetched[pos] = true
			chunk, err := e.store.GetChunk(ctx, w.DocumentName, pos)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("fetch %q position %d: %w", w.DocumentName, pos, err)
			}
			w.chunks[pos] = chunk
		}
	}
	e.logger.Debug("window expanded",
		zap.String("doc_name", w.DocumentName),
		zap.Int("matched", len(matched)),
		zap.Int("lookups", len(fetched)),
		zap.Int("chunks", len(w.chunks)))
	return nil
}

// Assemble concatenates each window's text following order. Names without a window are skipped.
func Assemble(windows map[string]*ContextWindow, order []string) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		if w, ok := windows[name]; ok && w.Len() > 0 {
			parts = append(parts, w.Text())
		}
	}
	return strings.Join(parts, documentSeparator)
}
