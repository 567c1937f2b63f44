package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be brief", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"42"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4"})
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), "gpt-4o", "be brief", "question")
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestOpenAIProvider_Azure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/my-gpt/chat/completions", r.URL.Path)
		assert.Equal(t, "2023-05-15", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{
		APIKey: "azure-key", APIType: "azure", BaseURL: srv.URL + "/", APIVersion: "2023-05-15", Model: "my-gpt",
	})
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), "", "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIProvider_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`, KindAuth},
		{"forbidden", http.StatusForbidden, `forbidden`, KindAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, KindRateLimit},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"context too long"}}`, KindMalformed},
		{"server error", http.StatusBadGateway, `upstream`, KindUnavailable},
		{"not json", http.StatusOK, `<html>`, KindMalformed},
		{"no choices", http.StatusOK, `{"choices":[]}`, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = p.Complete(context.Background(), "", "s", "u")
			var perr *ProviderError
			require.True(t, errors.As(err, &perr), "expected ProviderError, got %v", err)
			assert.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "", "s", "u")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindUnavailable, perr.Kind)
}

func TestOpenAIProvider_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, 1, req.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"t"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, RequestsPerSecond: 100})
	require.NoError(t, err)
	assert.NoError(t, p.Check(context.Background()))
}

func TestNewOpenAIProvider_validation(t *testing.T) {
	_, err := NewOpenAIProvider(config.LLMConfig{})
	assert.Error(t, err)
	_, err = NewOpenAIProvider(config.LLMConfig{APIKey: "k", APIType: "azure"})
	assert.Error(t, err)
	p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.Model())
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{Kind: KindAuth, StatusCode: 401, Message: "bad key"}
	assert.Equal(t, "llm auth (status 401): bad key", err.Error())
	inner := errors.New("dial tcp: refused")
	wrapped := &ProviderError{Kind: KindUnavailable, Err: inner}
	assert.Equal(t, "llm unavailable: dial tcp: refused", wrapped.Error())
	assert.True(t, errors.Is(wrapped, inner))
}
