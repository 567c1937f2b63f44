package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/indexer"
	"go.uber.org/zap"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"how do refunds work", "-json"},
			expected: []string{"-json", "how do refunds work"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-model", "gpt-4", "how do refunds work"},
			expected: []string{"-model", "gpt-4", "how do refunds work"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"how do refunds work"},
			expected: []string{"how do refunds work"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"reset", "password", "-model", "gpt-4"},
			expected: []string{"-model", "gpt-4", "reset", "password"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"refund"}, "refund"},
		{"multiple words", []string{"reset", "password"}, "reset password"},
		{"single quoted phrase", []string{"reset password"}, "reset password"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := joinQuery(tt.args)
			if got != tt.expected {
				t.Errorf("joinQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
tenant: support
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
	if cfg.Tenant != "support" {
		t.Errorf("tenant = %q, want support", cfg.Tenant)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
retrieval:
  top_k: 3
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("top_k = %d, want 3", cfg.Retrieval.TopK)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestLoadConfig_environmentOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("tenant: from_file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RAGTRIEVER_TENANT", "from_env")
	t.Setenv("RAGTRIEVER_MODEL", "gpt-4o")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tenant != "from_env" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("tenant %q model %q, want environment values", cfg.Tenant, cfg.LLM.Model)
	}
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "ragtriever.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "indices", "bleve")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "indices", "vectors.bin")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 32
	overlap := 1
	cfg.Ingest.ChunkUnits = 5
	cfg.Ingest.ChunkOverlap = &overlap
	return cfg
}

func TestInitializeComponents_persistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docs, 0755); err != nil {
		t.Fatal(err)
	}
	text := "Refunds are issued within five business days. Contact billing for invoices older than a year."
	if err := os.WriteFile(filepath.Join(docs, "refunds.md"), []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, dir)
	ctx := context.Background()

	components, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	if components.Answers != nil {
		t.Error("answers should be nil without the language model")
	}
	if components.Cache == nil {
		t.Error("semantic cache should be enabled by default")
	}
	report, err := components.Indexer.IngestPath(ctx, docs, indexer.Options{})
	if err != nil {
		t.Fatalf("IngestPath: %v", err)
	}
	if len(report.Ingested) != 1 {
		t.Fatalf("ingested %d documents, want 1", len(report.Ingested))
	}
	chunks := report.Ingested[0].ChunkCount
	components.Close()

	if _, err := os.Stat(cfg.Storage.VectorIndexPath); err != nil {
		t.Fatalf("vector index not saved: %v", err)
	}

	reopened, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	status, err := reopened.Engine.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Documents != 1 || status.Chunks != int64(chunks) {
		t.Errorf("status documents %d chunks %d, want 1 and %d", status.Documents, status.Chunks, chunks)
	}
	if reopened.Engine.VectorIndexSize() != chunks {
		t.Errorf("vector index size %d, want %d", reopened.Engine.VectorIndexSize(), chunks)
	}
	matches, err := reopened.Engine.Search(ctx, "refunds business days", cfg.Tenant, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 || matches[0].Chunk.DocumentName != "refunds.md" {
		t.Errorf("expected a match from refunds.md, got %d matches", len(matches))
	}
}

func TestInitializeComponents_vectorizerMismatch(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	ctx := context.Background()

	components, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	components.Close()

	cfg.Embedding.Dimensions = 64
	_, err = initializeComponents(ctx, cfg, zap.NewNop(), false)
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mock:32") {
		t.Errorf("error should name the stored vectorizer: %v", err)
	}
}

func TestInitializeComponents_requiresLLMKey(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.LLM.APIKey = ""
	_, err := initializeComponents(context.Background(), cfg, zap.NewNop(), true)
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "llm.api_key" {
		t.Fatalf("expected llm.api_key configuration error, got %v", err)
	}
}

func TestInitializeComponents_withLLM(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = "http://127.0.0.1:1"
	components, err := initializeComponents(context.Background(), cfg, zap.NewNop(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()
	if components.Answers == nil || components.Provider == nil {
		t.Error("answers and provider should be initialized")
	}
}
