// Package config provides configuration loading and structs for the ragtriever server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is built once at
// startup and passed to constructors; nothing reads it from globals.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Tenant    string          `yaml:"tenant"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig selects and configures the embedder variant.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // openai, onnx or mock
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Dimensions int           `yaml:"dimensions"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	APIKey            string        `yaml:"api_key"`
	APIType           string        `yaml:"api_type"` // openai or azure
	BaseURL           string        `yaml:"base_url"`
	APIVersion        string        `yaml:"api_version"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// RetrievalConfig holds hybrid search and context expansion settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	WindowRadius   *int    `yaml:"window_radius"`
	HybridAlpha    float64 `yaml:"hybrid_alpha"`
	TopKCandidates int     `yaml:"top_k_candidates"`
	NameBoost      float64 `yaml:"name_boost"`
}

// Radius returns the window radius; defaults to 1 when unset.
func (r *RetrievalConfig) Radius() int {
	if r.WindowRadius != nil {
		return *r.WindowRadius
	}
	return 1
}

// CacheConfig configures the semantic answer cache.
type CacheConfig struct {
	Enabled             *bool         `yaml:"enabled"`
	Backend             string        `yaml:"backend"` // sqlite or redis
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	TTL                 time.Duration `yaml:"ttl"`
	RedisAddr           string        `yaml:"redis_addr"`
	RedisPrefix         string        `yaml:"redis_prefix"`
}

// EnabledOrDefault returns whether the cache is enabled; defaults to true when unset.
func (c *CacheConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// IngestConfig holds reader and chunker defaults for document ingestion.
type IngestConfig struct {
	Chunker            string        `yaml:"chunker"` // word or sentence
	ChunkUnits         int           `yaml:"chunk_units"`
	ChunkOverlap       *int          `yaml:"chunk_overlap"`
	BatchTokenLimit    int           `yaml:"batch_token_limit"`
	MaxChunkTokens     int           `yaml:"max_chunk_tokens"`
	WaitBetweenBatches time.Duration `yaml:"wait_between_batches"`
	DocumentType       string        `yaml:"document_type"`
	Extensions         []string      `yaml:"extensions"`
}

// Overlap returns the chunk overlap; defaults to 50 when unset.
func (i *IngestConfig) Overlap() int {
	if i.ChunkOverlap != nil {
		return *i.ChunkOverlap
	}
	return 50
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Default returns a config with every default applied, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
// Secrets loaded from the environment are not written back.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.LLM.APIKey = ""
	out.Embedding.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
