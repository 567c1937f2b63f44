package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/ragtriever/internal/config"
	"golang.org/x/time/rate"
)

// Ensure OpenAIProvider implements the interface.
var _ Provider = (*OpenAIProvider)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4"
	DefaultLLMTimeout = 120 * time.Second

	apiTypeAzure = "azure"
)

// OpenAIProvider calls the OpenAI or Azure OpenAI chat completions API.
type OpenAIProvider struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	apiType    string
	apiVersion string
	model      string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model     string              `json:"model,omitempty"`
	Messages  []chatCompletionMsg `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider creates a provider from cfg. The API key is required; azure also
// needs a base URL and API version.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.APIType == apiTypeAzure && (cfg.BaseURL == "" || cfg.APIVersion == "") {
		return nil, fmt.Errorf("azure openai: base URL and API version are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	p := &OpenAIProvider{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiType:    cfg.APIType,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p, nil
}

// Model returns the default model used when Complete gets an empty model ID.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends one chat completion. An empty modelID uses the configured model.
func (p *OpenAIProvider) Complete(ctx context.Context, modelID, systemPrompt, userContent string) (string, error) {
	messages := []chatCompletionMsg{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}
	return p.chatCompletion(ctx, modelID, messages, 0)
}

// Check verifies the key and endpoint with a one-token completion.
func (p *OpenAIProvider) Check(ctx context.Context) error {
	_, err := p.chatCompletion(ctx, "", []chatCompletionMsg{{Role: "user", Content: "test"}}, 1)
	return err
}

func (p *OpenAIProvider) endpoint(model string) string {
	if p.apiType == apiTypeAzure {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiVersion))
	}
	return p.baseURL + "/chat/completions"
}

func (p *OpenAIProvider) chatCompletion(ctx context.Context, model string, messages []chatCompletionMsg, maxTokens int) (string, error) {
	if model == "" {
		model = p.model
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", &ProviderError{Kind: KindRateLimit, Message: "client rate limit wait aborted", Err: err}
		}
	}

	reqBody := chatCompletionRequest{Messages: messages, MaxTokens: maxTokens}
	if p.apiType != apiTypeAzure {
		reqBody.Model = model
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Kind: KindMalformed, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(model), bytes.NewReader(jsonBody))
	if err != nil {
		return "", &ProviderError{Kind: KindMalformed, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiType == apiTypeAzure {
		req.Header.Set("api-key", p.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ProviderError{Kind: KindUnavailable, Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Kind: KindUnavailable, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	var chatResp chatCompletionResponse
	decodeErr := json.Unmarshal(body, &chatResp)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && chatResp.Error != nil {
			msg = chatResp.Error.Message
		}
		return "", &ProviderError{Kind: kindForStatus(resp.StatusCode), StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", &ProviderError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "decode response", Err: decodeErr}
	}
	if chatResp.Error != nil {
		return "", &ProviderError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return "", &ProviderError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "no response choices returned"}
	}
	return chatResp.Choices[0].Message.Content, nil
}

// Close releases resources.
func (p *OpenAIProvider) Close() error {
	return nil
}
