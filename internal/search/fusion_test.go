package search

import (
	"math"
	"testing"

	"github.com/hyperjump/ragtriever/internal/keyword"
	"github.com/hyperjump/ragtriever/internal/vector"
)

func TestNormalizeKeywordScores(t *testing.T) {
	results := []*keyword.Result{
		{ID: "a", Score: 2},
		{ID: "b", Score: 4},
		{ID: "c", Score: 1},
	}
	m := NormalizeKeywordScores(results)
	if m["b"] != 1.0 {
		t.Errorf("max score should be 1.0, got %f", m["b"])
	}
	if m["a"] != 0.5 {
		t.Errorf("a should be 0.5, got %f", m["a"])
	}
	if len(m) != 3 {
		t.Errorf("expected 3 entries, got %d", len(m))
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("nil input should give empty map")
	}
}

func TestNormalizeSemanticScores(t *testing.T) {
	results := []*vector.Result{
		{ID: "c1", Score: 0.9},
		{ID: "c2", Score: -0.3},
		{ID: "c3", Score: 1.0000001},
	}
	m := NormalizeSemanticScores(results)
	if m["c1"] != 0.9 || m["c2"] != 0 || m["c3"] != 1 {
		t.Errorf("unexpected map %v", m)
	}
}

func TestFuse(t *testing.T) {
	kw := map[string]float64{"a": 1.0, "b": 0.5}
	sem := map[string]float64{"b": 1.0, "c": 0.8}
	results := Fuse(kw, sem, 0.25, 0.75)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "b" {
		t.Errorf("b should rank first, got %s", results[0].ChunkID)
	}
	if math.Abs(results[0].Score-0.875) > 1e-9 {
		t.Errorf("fused score for b = %f", results[0].Score)
	}
	if results[0].KeywordScore != 0.5 || results[0].SemanticScore != 1.0 {
		t.Errorf("component scores not kept: %+v", results[0])
	}
}

func TestFuse_TiesOrderedByChunkID(t *testing.T) {
	results := Fuse(map[string]float64{"z": 1, "m": 1, "a": 1}, nil, 1, 0)
	for i, want := range []string{"a", "m", "z"} {
		if results[i].ChunkID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ChunkID, want)
		}
	}
}
