package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/ragtriever/pkg/utils"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search per namespace.
type MemoryIndex struct {
	dimensions int
	spaces     map[string]*space
	owner      map[string]string // id -> namespace
	mu         sync.RWMutex
}

type space struct {
	ids     []string
	vectors [][]float32
	pos     map[string]int
}

func newSpace() *space {
	return &space{pos: make(map[string]int)}
}

func (s *space) put(id string, vec []float32) {
	if i, ok := s.pos[id]; ok {
		s.vectors[i] = vec
		return
	}
	s.pos[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.vectors = append(s.vectors, vec)
}

func (s *space) remove(id string) {
	i, ok := s.pos[id]
	if !ok {
		return
	}
	last := len(s.ids) - 1
	if i != last {
		s.ids[i] = s.ids[last]
		s.vectors[i] = s.vectors[last]
		s.pos[s.ids[i]] = i
	}
	s.ids = s.ids[:last]
	s.vectors = s.vectors[:last]
	delete(s.pos, id)
}

// NewMemoryIndex creates an index with the given dimension. A dimension of 0 is
// fixed by the first Add or Load.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		spaces:     make(map[string]*space),
		owner:      make(map[string]string),
	}, nil
}

// Dimensions returns the vector size, or 0 while it is still unknown.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Add stores vectors under namespace, replacing any existing vector with the same ID.
func (m *MemoryIndex) Add(ctx context.Context, namespace string, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions == 0 {
		m.dimensions = len(vectors[0])
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
	}
	sp, ok := m.spaces[namespace]
	if !ok {
		sp = newSpace()
		m.spaces[namespace] = sp
	}
	for i, id := range ids {
		if prev, ok := m.owner[id]; ok && prev != namespace {
			m.spaces[prev].remove(id)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		sp.put(id, vec)
		m.owner[id] = namespace
	}
	return nil
}

// Search returns the top-k vectors in namespace by cosine similarity. Equal scores
// are ordered by ID.
func (m *MemoryIndex) Search(ctx context.Context, namespace string, query []float32, k int) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sp, ok := m.spaces[namespace]
	if k <= 0 || !ok || len(sp.ids) == 0 {
		return nil, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	results := make([]*Result, len(sp.ids))
	for i, vec := range sp.vectors {
		results[i] = &Result{ID: sp.ids[i], Score: Cosine(query, vec)}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Remove deletes vectors by ID from whichever namespace holds them.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		ns, ok := m.owner[id]
		if !ok {
			continue
		}
		m.spaces[ns].remove(id)
		delete(m.owner, id)
	}
	return nil
}

// RemoveNamespace drops every vector stored under namespace.
func (m *MemoryIndex) RemoveNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[namespace]
	if !ok {
		return nil
	}
	for _, id := range sp.ids {
		delete(m.owner, id)
	}
	delete(m.spaces, namespace)
	return nil
}

// Save persists the index to path. Format: dimension (4), n (4), then per vector:
// namespace length (4), namespace, id length (4), id, vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeTo(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.owner))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	namespaces := make([]string, 0, len(m.spaces))
	for ns := range m.spaces {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		sp := m.spaces[ns]
		for i, id := range sp.ids {
			if err := writeString(w, ns); err != nil {
				return fmt.Errorf("write namespace: %w", err)
			}
			if err := writeString(w, id); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if _, err := w.Write(utils.EncodeFloat32s(sp.vectors[i])); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. A configured
// dimension must match the file. A missing file leaves the index unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	spaces := make(map[string]*space)
	owner := make(map[string]string, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		ns, err := readString(r)
		if err != nil {
			return fmt.Errorf("read namespace: %w", err)
		}
		id, err := readString(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vec, err := utils.DecodeFloat32s(buf)
		if err != nil {
			return err
		}
		sp, ok := spaces[ns]
		if !ok {
			sp = newSpace()
			spaces[ns] = sp
		}
		sp.put(id, vec)
		owner[id] = ns
	}
	m.dimensions = int(dim)
	m.spaces = spaces
	m.owner = owner
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Size returns the number of vectors across all namespaces.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.owner)
}

// NamespaceSize returns the number of vectors stored under namespace.
func (m *MemoryIndex) NamespaceSize(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sp, ok := m.spaces[namespace]; ok {
		return len(sp.ids)
	}
	return 0
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
