package search

import (
	"fmt"
	"testing"
)

func BenchmarkFuse(b *testing.B) {
	kw := make(map[string]float64)
	sem := make(map[string]float64)
	for i := 0; i < 100; i++ {
		kw[fmt.Sprintf("kw-%d", i)] = float64(i) / 100
		sem[fmt.Sprintf("kw-%d", (i*7)%150)] = float64(100-i) / 100
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(kw, sem, 0.25, 0.75)
	}
}
