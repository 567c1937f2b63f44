package server

import (
	"github.com/hyperjump/ragtriever/internal/cache"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/embedding"
	"github.com/hyperjump/ragtriever/internal/indexer"
)

// Component is one selectable variant of a pipeline stage.
type Component struct {
	Name      string `json:"name"`
	Selected  bool   `json:"selected"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Components lists the variants of every pipeline stage and which one is in use.
type Components struct {
	Readers   []Component `json:"readers"`
	Chunkers  []Component `json:"chunkers"`
	Embedders []Component `json:"embedders"`
	Caches    []Component `json:"caches"`
	Generator Component   `json:"generator"`
}

// ListComponents reports the variants available under cfg.
func ListComponents(cfg *config.Config) *Components {
	out := &Components{}
	for _, k := range indexer.ReaderKinds {
		// the simple reader is the default for load_data requests
		out.Readers = append(out.Readers, Component{Name: string(k), Selected: k == indexer.ReaderSimple, Available: true})
	}
	for _, k := range indexer.ChunkerKinds {
		out.Chunkers = append(out.Chunkers, Component{Name: string(k), Selected: string(k) == cfg.Ingest.Chunker, Available: true})
	}
	for _, k := range embedding.Kinds {
		c := Component{Name: string(k), Selected: string(k) == cfg.Embedding.Provider, Available: true}
		switch k {
		case embedding.KindOpenAI:
			if cfg.Embedding.APIKey == "" {
				c.Available, c.Reason = false, "OPENAI_API_KEY is not set"
			}
		case embedding.KindONNX:
			if !embedding.ONNXAvailable {
				c.Available, c.Reason = false, "built without cgo"
			} else if cfg.Embedding.ModelPath == "" {
				c.Available, c.Reason = false, "embedding.model_path is not set"
			}
		}
		out.Embedders = append(out.Embedders, c)
	}
	for _, k := range []cache.BackendKind{cache.BackendSQLite, cache.BackendRedis} {
		c := Component{
			Name:      string(k),
			Selected:  cfg.Cache.EnabledOrDefault() && string(k) == cfg.Cache.Backend,
			Available: true,
		}
		if k == cache.BackendRedis && cfg.Cache.RedisAddr == "" {
			c.Available, c.Reason = false, "cache.redis_addr is not set"
		}
		out.Caches = append(out.Caches, c)
	}
	out.Generator = Component{Name: cfg.LLM.APIType + ":" + cfg.LLM.Model, Selected: true, Available: cfg.LLM.APIKey != ""}
	if !out.Generator.Available {
		out.Generator.Reason = "OPENAI_API_KEY is not set"
	}
	return out
}
