// Package main is the ragtriever CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/ragtriever/internal/cli"
	"github.com/hyperjump/ragtriever/internal/config"
	"github.com/hyperjump/ragtriever/internal/indexer"
	"github.com/hyperjump/ragtriever/internal/llm"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/internal/server"
	"github.com/hyperjump/ragtriever/internal/storage"
	"github.com/hyperjump/ragtriever/internal/watcher"
	"github.com/hyperjump/ragtriever/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ragtriever/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present; when neither exists the built-in defaults are used.
// Environment variables (and .env) are applied last. Returns the config and the path
// that was loaded, empty when running on defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}
	resolved := path
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				resolved = fallback
			}
		}
	}
	var cfg *config.Config
	if _, err := os.Stat(resolved); err != nil && resolved == defaultConfigPath {
		cfg, resolved = config.Default(), ""
	} else {
		cfg, err = config.Load(resolved)
		if err != nil {
			return nil, "", err
		}
	}
	config.ApplyEnv(cfg)
	return cfg, resolved, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "documents":
		runDocuments()
	case "status":
		runStatus()
	case "check":
		runCheck()
	case "reset":
		runReset()
	case "version", "--version", "-v":
		fmt.Printf("ragtriever version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fatalf prints to stderr and exits with status 1.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func outputFormat(asJSON bool) cli.OutputFormat {
	if asJSON {
		return cli.OutputJSON
	}
	return cli.OutputText
}

// setup loads config and builds the components for a direct (serverless) command.
func setup(configPath string, debug, withLLM bool) (*Components, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	if !debugMode {
		logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}
	components, err := initializeComponents(context.Background(), cfg, logger, withLLM)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fatalf("%v", err)
		}
		fatalf("Failed to initialize: %v", err)
	}
	return components, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	opts := []server.Option{server.WithProviderCheck(components.Provider)}
	if components.Cache != nil {
		opts = append(opts, server.WithCache(components.Cache))
	}

	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Ingest.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		components.Indexer,
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()
	if n := watchSvc.SyncExistingFiles(); n > 0 {
		logger.Info("watched files synced", zap.Int("files", n))
	}
	opts = append(opts, server.WithWatch(watchSvc, resolvedConfigPath))

	srv := server.NewServer(
		components.Engine,
		components.Answers,
		components.Indexer,
		components.Storage,
		cfg,
		logger,
		opts...,
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// joinQuery joins all positional args with spaces so multi-word queries work the
// same with or without shell quoting.
func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that appear after the positional arguments to the front so
// that flag.Parse sees them; the flag package stops at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer directly without a running server)")
	model := fs.String("model", "", "model or deployment id (default from config)")
	asJSON := fs.Bool("json", false, "print the answer as JSON")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ragtriever ask [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	query := joinQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	req := &models.QueryRequest{Query: query, Model: *model}

	var ans *models.Answer
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflict).
		ans = new(models.Answer)
		if err := postJSON(*serverURL+"/api/query", req, ans); err != nil {
			fatalf("Query failed: %v", err)
		}
	} else {
		components, logger, _ := setup(*configPath, false, true)
		defer logger.Sync()
		defer components.Close()
		var err error
		ans, err = components.Answers.Answer(context.Background(), req.Query, req.Model)
		if err != nil {
			fatalf("Query failed: %v", err)
		}
	}
	if err := cli.WriteAnswer(os.Stdout, ans, outputFormat(*asJSON)); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	chunker := fs.String("chunker", "", "chunker: word or sentence (default from config)")
	units := fs.Int("units", 0, "units per chunk (default from config)")
	overlap := fs.Int("overlap", -1, "overlapping units between chunks (default from config)")
	docType := fs.String("type", "", "document type (default from config)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: ragtriever ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, logger, _ := setup(*configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	opts := indexer.Options{
		Chunker:      indexer.ChunkerKind(*chunker),
		Units:        *units,
		DocumentType: *docType,
	}
	if *overlap >= 0 {
		opts.Overlap = overlap
	}
	report, err := components.Indexer.IngestPath(context.Background(), path, opts)
	if err != nil {
		fatalf("Ingest failed: %v", err)
	}
	if err := cli.WriteReport(os.Stdout, report, outputFormat(*asJSON)); err != nil {
		fatalf("Output failed: %v", err)
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: ragtriever delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, logger, _ := setup(*configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Engine.DeleteDocument(context.Background(), docID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fatalf("Document not found: %s", docID)
		}
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read storage directly)")
	docType := fs.String("type", "", "only list documents of this type")
	query := fs.String("query", "", "only list documents whose name or content matches")
	asJSON := fs.Bool("json", false, "print documents as JSON")
	_ = fs.Parse(os.Args[2:])

	var docs []*models.Document
	if *serverURL != "" {
		var out struct {
			Documents []*models.Document `json:"documents"`
		}
		var err error
		if *query != "" {
			err = postJSON(*serverURL+"/api/search_documents", map[string]string{"query": *query, "doc_type": *docType}, &out)
		} else {
			err = postJSON(*serverURL+"/api/get_all_documents", map[string]string{"doc_type": *docType}, &out)
		}
		if err != nil {
			fatalf("List documents failed: %v", err)
		}
		docs = out.Documents
	} else {
		components, logger, _ := setup(*configPath, false, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		if *query != "" {
			docs, err = components.Engine.SearchDocuments(context.Background(), *query, *docType)
		} else {
			docs, err = components.Engine.ListDocuments(context.Background(), *docType)
		}
		if err != nil {
			fatalf("List documents failed: %v", err)
		}
	}
	if err := cli.WriteDocuments(os.Stdout, docs, outputFormat(*asJSON)); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read storage directly)")
	asJSON := fs.Bool("json", false, "print status as JSON")
	_ = fs.Parse(os.Args[2:])

	status := map[string]interface{}{}
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		components, logger, _ := setup(*configPath, false, false)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		st, err := components.Engine.Status(ctx)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		// round-trip through JSON so direct and HTTP output share one shape
		if err := remarshal(st, &status); err != nil {
			fatalf("Status failed: %v", err)
		}
		if components.Cache != nil {
			if n, err := components.Cache.Count(ctx); err == nil {
				status["cache_entries"] = n
			}
		}
		status["embedder"] = components.Embedder.Name()
		cfg := components.Config
		if usage, err := storage.MeasureDiskUsage(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath); err == nil {
			status["disk_usage"] = usage
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, outputFormat(*asJSON)); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateLLM(); err != nil {
		fatalf("%v", err)
	}
	provider, err := llm.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		fatalf("%v", err)
	}
	defer provider.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := provider.Check(ctx); err != nil {
		fatalf("Provider check failed: %v", err)
	}
	fmt.Printf("Provider OK: %s %s\n", cfg.LLM.APIType, provider.Model())
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "confirm deleting every document, chunk and cached answer of the tenant")
	_ = fs.Parse(os.Args[2:])

	if !*yes {
		fatalf("Refusing to reset without -yes")
	}
	components, logger, _ := setup(*configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if err := components.Engine.Reset(ctx); err != nil {
		fatalf("Reset failed: %v", err)
	}
	if components.Cache != nil {
		if err := components.Cache.Purge(ctx); err != nil {
			fatalf("Cache purge failed: %v", err)
		}
	}
	fmt.Printf("Tenant reset: %s\n", components.Config.Tenant)
}

func postJSON(url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func remarshal(in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func printUsage() {
	fmt.Println(`ragtriever - Retrieval augmented answers with a semantic cache

Usage:
  ragtriever server [flags]             Start the HTTP server
  ragtriever ask [flags] <query>        Answer a query from the indexed documents
  ragtriever ingest [flags] <path>      Ingest a file or directory
  ragtriever delete [flags] <id>        Delete a document
  ragtriever documents [flags]          List documents
  ragtriever status [flags]             Show storage, index and cache status
  ragtriever check [flags]              Verify the language model credentials
  ragtriever reset -yes [flags]         Delete all documents and cached answers of the tenant
  ragtriever version                    Show version
  ragtriever help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/ragtriever/config.yaml,
                     or ./config.yaml when present)
  --server string    Server URL for ask, documents and status (default: http://localhost:8000).
                     Use --server "" to read storage directly when no server is running.
  --json             Print JSON instead of text

Ingest Flags:
  --chunker string   word or sentence
  --units int        Units per chunk
  --overlap int      Overlapping units between chunks
  --type string      Document type

Environment:
  OPENAI_API_KEY, OPENAI_API_TYPE, OPENAI_API_BASE, OPENAI_API_VERSION,
  RAGTRIEVER_MODEL, RAGTRIEVER_TENANT, REDIS_ADDR (also read from .env)

Examples:
  ragtriever server
  ragtriever ingest ./docs
  ragtriever ingest --chunker sentence --units 5 notes.md
  ragtriever ask how do I reset my password
  ragtriever ask --json "what is the refund policy"
  ragtriever documents --type Documentation
  ragtriever status --json`)
}
