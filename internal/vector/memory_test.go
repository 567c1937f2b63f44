package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, "t1", []string{"a", "b", "c"}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, "t1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("score for identical vector: %f", results[0].Score)
	}
}

func TestMemoryIndex_NamespacesAreIsolated(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, "t1", []string{"x"}, [][]float32{{1, 0}})
	_ = idx.Add(ctx, "t2", []string{"y"}, [][]float32{{1, 0}})

	results, err := idx.Search(ctx, "t2", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "y" {
		t.Errorf("expected only y, got %+v", results)
	}
	if res, _ := idx.Search(ctx, "missing", []float32{1, 0}, 10); len(res) != 0 {
		t.Errorf("unknown namespace should return nothing, got %d", len(res))
	}

	if err := idx.RemoveNamespace(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 || idx.NamespaceSize("t1") != 0 {
		t.Errorf("after RemoveNamespace: size %d", idx.Size())
	}
}

func TestMemoryIndex_TiesOrderedByID(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, "t", []string{"c", "a", "b"}, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	results, _ := idx.Search(ctx, "t", []float32{1, 0}, 3)
	for i, want := range []string{"a", "b", "c"} {
		if results[i].ID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestMemoryIndex_AddReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, "t", []string{"x"}, [][]float32{{1, 0}})
	_ = idx.Add(ctx, "t", []string{"x"}, [][]float32{{0, 1}})
	if idx.Size() != 1 {
		t.Fatalf("size = %d", idx.Size())
	}
	results, _ := idx.Search(ctx, "t", []float32{0, 1}, 1)
	if results[0].Score < 0.99 {
		t.Errorf("vector was not replaced, score %f", results[0].Score)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, "t", []string{"x", "y", "z"}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	if err := idx.Remove(ctx, []string{"x", "nope"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Errorf("expected size 2, got %d", idx.Size())
	}
	results, _ := idx.Search(ctx, "t", []float32{1, 0}, 10)
	for _, r := range results {
		if r.ID == "x" {
			t.Error("removed vector still returned")
		}
	}
}

func TestMemoryIndex_LearnsDimensions(t *testing.T) {
	idx, err := NewMemoryIndex(0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if res, err := idx.Search(ctx, "t", []float32{1}, 1); err != nil || res != nil {
		t.Errorf("empty index search: %v %v", res, err)
	}
	if err := idx.Add(ctx, "t", []string{"a"}, [][]float32{{1, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if idx.Dimensions() != 4 {
		t.Errorf("dimensions = %d", idx.Dimensions())
	}
	if err := idx.Add(ctx, "t", []string{"b"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected dimension mismatch")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "vectors.bin")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(ctx, "t1", []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	_ = idx.Add(ctx, "t2", []string{"c"}, [][]float32{{0.6, 0.8}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(0)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 3 || loaded.NamespaceSize("t1") != 2 || loaded.Dimensions() != 2 {
		t.Fatalf("loaded size %d t1 %d dims %d", loaded.Size(), loaded.NamespaceSize("t1"), loaded.Dimensions())
	}
	results, _ := loaded.Search(ctx, "t2", []float32{0.6, 0.8}, 1)
	if len(results) != 1 || results[0].ID != "c" {
		t.Errorf("unexpected results after load: %+v", results)
	}

	wrong, _ := NewMemoryIndex(3)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
}

func TestMemoryIndex_LoadMissingFile(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	if err := idx.Load(filepath.Join(t.TempDir(), "none.bin")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{2, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("parallel vectors: %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 3}); got != 0 {
		t.Errorf("orthogonal vectors: %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: %f", got)
	}
	if Cosine([]float32{0, 0}, []float32{1, 0}) != 0 || Cosine([]float32{1}, []float32{1, 0}) != 0 {
		t.Error("degenerate inputs should return 0")
	}
}
