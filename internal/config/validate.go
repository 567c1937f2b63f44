package config

import "fmt"

// ConfigurationError reports a setting that prevents startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Validate checks the retrieval-facing settings and the selected variants.
func (c *Config) Validate() error {
	if c.Tenant == "" {
		return &ConfigurationError{Field: "tenant", Reason: "must not be empty"}
	}
	if c.Retrieval.TopK <= 0 {
		return &ConfigurationError{Field: "retrieval.top_k", Reason: "must be greater than 0"}
	}
	if c.Retrieval.Radius() < 0 {
		return &ConfigurationError{Field: "retrieval.window_radius", Reason: "must not be negative"}
	}
	if c.Retrieval.HybridAlpha < 0 || c.Retrieval.HybridAlpha > 1 {
		return &ConfigurationError{Field: "retrieval.hybrid_alpha", Reason: "must be within [0, 1]"}
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return &ConfigurationError{Field: "cache.similarity_threshold", Reason: "must be within [0, 1]"}
	}
	switch c.Cache.Backend {
	case "sqlite":
	case "redis":
		if c.Cache.EnabledOrDefault() && c.Cache.RedisAddr == "" {
			return &ConfigurationError{Field: "cache.redis_addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigurationError{Field: "cache.backend", Reason: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return &ConfigurationError{Field: "embedding.api_key", Reason: "OPENAI_API_KEY is not set"}
		}
	case "onnx", "mock":
	default:
		return &ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}
	if c.Ingest.ChunkUnits <= 0 || c.Ingest.Overlap() < 0 || c.Ingest.Overlap() >= c.Ingest.ChunkUnits {
		return &ConfigurationError{Field: "ingest.chunk_overlap", Reason: "overlap must be within [0, chunk_units)"}
	}
	return nil
}

// ValidateLLM checks the settings needed to answer queries.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		return &ConfigurationError{Field: "llm.api_key", Reason: "OPENAI_API_KEY is not set"}
	}
	switch c.LLM.APIType {
	case "openai":
	case "azure":
		if c.LLM.BaseURL == "" || c.LLM.APIVersion == "" {
			return &ConfigurationError{Field: "llm.base_url", Reason: "azure requires OPENAI_API_BASE and OPENAI_API_VERSION"}
		}
	default:
		return &ConfigurationError{Field: "llm.api_type", Reason: fmt.Sprintf("unknown api type %q", c.LLM.APIType)}
	}
	return nil
}
