package config

import "time"

// DefaultTenant is the tenant namespace used when none is configured.
const DefaultTenant = "default_tenant"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Tenant == "" {
		cfg.Tenant = DefaultTenant
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ragtriever/data/db/ragtriever.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/ragtriever/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/ragtriever/data/indices/vectors.bin"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.LLM.APIType == "" {
		cfg.LLM.APIType = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 8
	}
	if cfg.Retrieval.HybridAlpha == 0 {
		cfg.Retrieval.HybridAlpha = 0.75
	}
	if cfg.Retrieval.TopKCandidates == 0 {
		cfg.Retrieval.TopKCandidates = 100
	}
	if cfg.Retrieval.NameBoost == 0 {
		cfg.Retrieval.NameBoost = 2.0
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if cfg.Cache.SimilarityThreshold == 0 {
		cfg.Cache.SimilarityThreshold = 0.95
	}
	if cfg.Cache.RedisPrefix == "" {
		cfg.Cache.RedisPrefix = "ragtriever:cache"
	}

	if cfg.Ingest.Chunker == "" {
		cfg.Ingest.Chunker = "word"
	}
	if cfg.Ingest.ChunkUnits == 0 {
		cfg.Ingest.ChunkUnits = 100
	}
	if cfg.Ingest.BatchTokenLimit == 0 {
		cfg.Ingest.BatchTokenLimit = 4000
	}
	if cfg.Ingest.MaxChunkTokens == 0 {
		cfg.Ingest.MaxChunkTokens = 1000
	}
	if cfg.Ingest.DocumentType == "" {
		cfg.Ingest.DocumentType = "Documentation"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".mdx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
