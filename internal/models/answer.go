package models

import (
	"fmt"
	"strings"
	"time"
)

// MatchResult is one ranked chunk returned by hybrid search.
type MatchResult struct {
	Chunk         *Chunk  `json:"chunk"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
}

// QueryRequest is the input for answering a query.
type QueryRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// Validate trims the query and rejects an empty one.
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Answer is the result of answering a query. Matches are the ranked search
// hits (or the cached ones on a cache hit).
type Answer struct {
	Text         string         `json:"system"`
	Matches      []*MatchResult `json:"documents"`
	Cached       bool           `json:"cached"`
	Degraded     bool           `json:"degraded,omitempty"`
	Documents    []string       `json:"context_documents,omitempty"`
	ContextChars int            `json:"context_chars,omitempty"`
	QueryTime    int64          `json:"query_time_ms"`
}

// CacheEntry is one semantic cache record. Entries are replaced, never mutated.
type CacheEntry struct {
	ID        string         `json:"id"`
	Tenant    string         `json:"tenant"`
	Query     string         `json:"query"`
	Embedding []float32      `json:"-"`
	Answer    string         `json:"answer"`
	Matches   []*MatchResult `json:"matches"`
	CreatedAt time.Time      `json:"created_at"`
}
