package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into the
// process environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides cfg with values from the environment.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Tenant, "RAGTRIEVER_TENANT")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.APIType, "OPENAI_API_TYPE")
	setString(&cfg.LLM.BaseURL, "OPENAI_API_BASE")
	setString(&cfg.LLM.APIVersion, "OPENAI_API_VERSION")
	setString(&cfg.LLM.Model, "RAGTRIEVER_MODEL")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.BaseURL == "" && cfg.LLM.APIType == "openai" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
