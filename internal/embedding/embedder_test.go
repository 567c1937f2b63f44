package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/ragtriever/internal/config"
)

func TestNew_mockWithCache(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Fatalf("expected cached embedder, got %T", e)
	}
	if e.Name() != "mock:8" || e.Dimensions() != 8 {
		t.Errorf("name %s dims %d", e.Name(), e.Dimensions())
	}
	a, _ := e.Embed(context.Background(), "hello")
	b, _ := e.Embed(context.Background(), "hello")
	if &a[0] != &b[0] {
		t.Error("second embed should be served from cache")
	}
}

func TestNew_unknownProvider(t *testing.T) {
	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_openaiRequiresKey(t *testing.T) {
	if _, err := New(config.EmbeddingConfig{Provider: "openai"}, nil); err == nil {
		t.Error("expected error without api key")
	}
}
