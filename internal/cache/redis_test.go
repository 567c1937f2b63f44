package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore connects to REDIS_ADDR; tests are skipped without a server.
func newRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	prefix := "ragtriever-test:" + uuid.NewString()
	s, err := NewRedisStore(context.Background(), addr, prefix, ttl)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Purge(context.Background(), "t1")
		_ = s.Close()
	})
	return s
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := newRedisStore(t, 0)
	emb := &fixedEmbedder{vectors: map[string][]float32{"question": {1, 0, 0}}}
	c := New(s, emb, "t1", 0.95)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "Question", sampleMatches, "answer"))
	require.NoError(t, c.Store(ctx, "question", sampleMatches, "answer again"))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	hit, err := c.Lookup(ctx, "question")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "answer again", hit.Answer)
	require.Len(t, hit.Matches, 1)

	require.NoError(t, c.Purge(ctx))
	hit, err = c.Lookup(ctx, "question")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestRedisStore_Expiry(t *testing.T) {
	s := newRedisStore(t, time.Second)
	c := New(s, &fixedEmbedder{}, "t1", 0.95)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "short lived", nil, "a"))

	time.Sleep(1500 * time.Millisecond)
	hit, err := c.Lookup(ctx, "short lived")
	require.NoError(t, err)
	assert.Nil(t, hit)
	n, _ := c.Count(ctx)
	assert.Zero(t, n, "expired ids are pruned on lookup")
}

func TestNewRedisStore_requiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "", "p", 0)
	assert.Error(t, err)
}
