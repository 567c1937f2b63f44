package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	// touching a leaves b as the eviction candidate
	c.Get("a")
	c.Set("c", []float32{6})
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("len: got %d", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	batchCalls int
	texts      int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.texts += len(texts)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_EmbedBatchOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	ce := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := ce.Embed(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	out, err := ce.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[1] == nil || out[2] == nil {
		t.Fatalf("unexpected output %v", out)
	}
	if inner.batchCalls != 1 || inner.texts != 2 {
		t.Errorf("expected one batch of 2 misses, got %d calls / %d texts", inner.batchCalls, inner.texts)
	}
	want, _ := inner.MockEmbedder.Embed(ctx, "beta")
	for i := range want {
		if out[1][i] != want[i] {
			t.Fatalf("batch result out of order at %d", i)
		}
	}
	if ce.Name() != "mock:4" {
		t.Errorf("Name should pass through, got %s", ce.Name())
	}
}

func TestMockEmbedder_SharedWordsAreSimilar(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "How do I reset my password?")
	b, _ := e.Embed(ctx, "how do i reset my password")
	if !equalFloats(a, b) {
		t.Error("case and punctuation should not change the embedding")
	}
	empty, _ := e.Embed(ctx, "  ?! ")
	for _, v := range empty {
		if v != 0 {
			t.Fatal("text without words should embed to zero")
		}
	}
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
