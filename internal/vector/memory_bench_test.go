package vector

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := NewMemoryIndex(384)
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	otherIDs := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i+1) / 1000
		vecs[i][1] = 1
		ids[i] = fmt.Sprintf("chunk-%d", i)
		otherIDs[i] = fmt.Sprintf("other-%d", i)
	}
	// a second tenant the search must not scan
	_ = idx.Add(ctx, "default_tenant", ids, vecs)
	_ = idx.Add(ctx, "other_tenant", otherIDs, vecs)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, "default_tenant", query, 10)
	}
}
