package answer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/ragtriever/internal/cache"
	"github.com/hyperjump/ragtriever/internal/llm"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRetriever serves documents of numbered chunks "<doc>#<pos>".
type fakeRetriever struct {
	lengths   map[string]int
	matches   []*models.MatchResult
	searchErr error
	searches  int
	lookups   []string
}

func (f *fakeRetriever) Search(ctx context.Context, query, tenant string, limit int) ([]*models.MatchResult, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func (f *fakeRetriever) GetChunk(ctx context.Context, doc string, pos int) (*models.Chunk, error) {
	f.lookups = append(f.lookups, fmt.Sprintf("%s#%d", doc, pos))
	if pos < 0 || pos >= f.lengths[doc] {
		return nil, storage.ErrNotFound
	}
	return testChunk(doc, pos), nil
}

func testChunk(doc string, pos int) *models.Chunk {
	return &models.Chunk{ID: fmt.Sprintf("%s-%d", doc, pos), DocumentName: doc, Position: pos, Content: fmt.Sprintf("%s#%d", doc, pos)}
}

type fakeProvider struct {
	reply   string
	err     error
	calls   int
	system  string
	user    string
	modelID string
}

func (f *fakeProvider) Complete(ctx context.Context, modelID, system, user string) (string, error) {
	f.calls++
	f.modelID, f.system, f.user = modelID, system, user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeCache struct {
	entry     *models.CacheEntry
	lookupErr error
	stored    int
	storeErr  error
}

func (f *fakeCache) Lookup(ctx context.Context, query string) (*models.CacheEntry, error) {
	return f.entry, f.lookupErr
}

func (f *fakeCache) Store(ctx context.Context, query string, matches []*models.MatchResult, answer string) error {
	f.stored++
	return f.storeErr
}

var testConfig = Config{Tenant: "default_tenant", TopK: 8, Radius: 1, Model: "gpt-4"}

func TestEngine_AnswerExpandsContext(t *testing.T) {
	r := &fakeRetriever{
		lengths: map[string]int{"D": 5},
		matches: []*models.MatchResult{{Chunk: testChunk("D", 2), Score: 0.9}},
	}
	p := &fakeProvider{reply: "answer"}
	c := &fakeCache{}
	e := NewEngine(r, p, testConfig, WithCache(c))

	ans, err := e.Answer(context.Background(), "what is in D?", "")
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.False(t, ans.Cached)
	assert.False(t, ans.Degraded)
	assert.ElementsMatch(t, []string{"D#1", "D#3"}, r.lookups)
	assert.Equal(t, []string{"D"}, ans.Documents)
	assert.Equal(t, SystemPrompt, p.system)
	assert.Equal(t, "gpt-4", p.modelID)
	assert.Equal(t, UserContent("D#1 D#2 D#3", "what is in D?"), p.user)
	assert.Equal(t, len("D#1 D#2 D#3"), ans.ContextChars)
	assert.Equal(t, 1, c.stored)
}

func TestEngine_NoMatchesIsRetrievalFailure(t *testing.T) {
	r := &fakeRetriever{}
	p := &fakeProvider{reply: "never"}
	c := &fakeCache{}
	_, err := NewEngine(r, p, testConfig, WithCache(c)).Answer(context.Background(), "anything", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetrievalFailure))
	assert.Zero(t, p.calls)
	assert.Zero(t, c.stored)
}

func TestEngine_SearchErrorIsRetrievalFailure(t *testing.T) {
	boom := errors.New("index offline")
	r := &fakeRetriever{searchErr: boom}
	p := &fakeProvider{}
	_, err := NewEngine(r, p, testConfig).Answer(context.Background(), "anything", "")
	assert.True(t, errors.Is(err, ErrRetrievalFailure))
	assert.True(t, errors.Is(err, boom))
	assert.Zero(t, p.calls)
}

func TestEngine_ProviderErrorDegrades(t *testing.T) {
	matches := []*models.MatchResult{{Chunk: testChunk("D", 0), Score: 0.8}}
	r := &fakeRetriever{lengths: map[string]int{"D": 1}, matches: matches}
	p := &fakeProvider{err: &llm.ProviderError{Kind: llm.KindAuth, StatusCode: 401, Message: "bad key"}}
	c := &fakeCache{}

	ans, err := NewEngine(r, p, testConfig, WithCache(c)).Answer(context.Background(), "q", "")
	require.NoError(t, err)
	assert.True(t, ans.Degraded)
	assert.Equal(t, Apology(p.err), ans.Text)
	assert.Contains(t, ans.Text, "API Key")
	assert.Equal(t, matches, ans.Matches)
	assert.Zero(t, c.stored, "failed generations must not be cached")
}

func TestEngine_CacheHitSkipsRetrieval(t *testing.T) {
	cached := []*models.MatchResult{{Chunk: testChunk("E", 4)}}
	r := &fakeRetriever{}
	p := &fakeProvider{}
	c := &fakeCache{entry: &models.CacheEntry{Answer: "from cache", Matches: cached}}

	ans, err := NewEngine(r, p, testConfig, WithCache(c)).Answer(context.Background(), "q", "")
	require.NoError(t, err)
	assert.True(t, ans.Cached)
	assert.Equal(t, "from cache", ans.Text)
	assert.Equal(t, []string{"E"}, ans.Documents)
	assert.Zero(t, r.searches)
	assert.Zero(t, p.calls)
}

func TestEngine_CacheErrorsAreNotFatal(t *testing.T) {
	r := &fakeRetriever{lengths: map[string]int{"D": 1}, matches: []*models.MatchResult{{Chunk: testChunk("D", 0)}}}
	p := &fakeProvider{reply: "fresh"}
	c := &fakeCache{lookupErr: errors.New("redis down"), storeErr: errors.New("redis down")}

	ans, err := NewEngine(r, p, testConfig, WithCache(c)).Answer(context.Background(), "q", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "fresh", ans.Text)
	assert.Equal(t, "gpt-4o", p.modelID)
	assert.Equal(t, 1, c.stored)
}

func TestEngine_EmptyQuery(t *testing.T) {
	_, err := NewEngine(&fakeRetriever{}, &fakeProvider{}, testConfig).Answer(context.Background(), "  ", "")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrRetrievalFailure))
}

// similarEmbedder returns vectors whose cosine similarity is 0.97 for the two test queries.
type similarEmbedder struct{}

func (similarEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "reset") {
		return []float32{1, 0}, nil
	}
	return []float32{0.97, 0.2431049}, nil
}

func TestEngine_ParaphraseHitsSemanticCache(t *testing.T) {
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "answer.db"))
	require.NoError(t, err)
	defer st.Close()
	sc := cache.New(cache.NewSQLiteStore(st.DB(), 0), similarEmbedder{}, "default_tenant", 0.95)

	r := &fakeRetriever{lengths: map[string]int{"D": 3}, matches: []*models.MatchResult{{Chunk: testChunk("D", 1)}}}
	p := &fakeProvider{reply: "Open settings and choose reset."}
	e := NewEngine(r, p, testConfig, WithCache(sc))
	ctx := context.Background()

	first, err := e.Answer(ctx, "How do I reset my password?", "")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Answer(ctx, "Forgot password, what now?", "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, r.searches)
	require.Len(t, second.Matches, 1)
	assert.Equal(t, "D", second.Matches[0].Chunk.DocumentName)
}

func TestApology(t *testing.T) {
	kinds := []llm.ErrorKind{llm.KindAuth, llm.KindRateLimit, llm.KindMalformed, llm.KindUnavailable}
	seen := make(map[string]bool)
	for _, k := range kinds {
		msg := Apology(&llm.ProviderError{Kind: k})
		assert.NotEmpty(t, msg)
		seen[msg] = true
	}
	assert.Len(t, seen, len(kinds), "each kind has its own message")
	assert.NotEmpty(t, Apology(errors.New("plain")))
}
