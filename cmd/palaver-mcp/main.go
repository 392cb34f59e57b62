// Command palaver-mcp exposes the clustering engine as an MCP server over
// stdio, so agent hosts can list, run, and edit topic clusters. Logs go to
// stderr; stdout is reserved for the JSON-RPC stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/internal/config"
	"github.com/palaverhq/palaver/internal/mcptools"
	"github.com/palaverhq/palaver/internal/profile"
	"github.com/palaverhq/palaver/pkg/provider/llm"
	"github.com/palaverhq/palaver/pkg/provider/llm/anyllm"
	"github.com/palaverhq/palaver/pkg/provider/llm/openai"
	"github.com/palaverhq/palaver/pkg/store"
	"github.com/palaverhq/palaver/pkg/store/memstore"
	"github.com/palaverhq/palaver/pkg/store/postgres"
	"github.com/palaverhq/palaver/pkg/store/sqlite"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "palaver-mcp: %v\n", err)
		return 1
	}

	// Stdout carries JSON-RPC; everything else must go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.Level(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer closeStore()

	provider, err := buildBackend(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey(), cfg.LLM.BaseURL)
	if err != nil {
		slog.Error("failed to build completion provider", "err", err)
		return 1
	}

	engine := cluster.New(st, st, profile.NewAssembler(st), provider)
	server := mcptools.NewServer(engine, version)

	slog.Info("palaver-mcp serving on stdio", "version", version, "store", cfg.Store.Driver)
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp server error", "err", err)
		return 1
	}
	return 0
}

// dataStore is the persistence surface the engine needs.
type dataStore interface {
	store.TranscriptStore
	store.ProfileStore
	store.ClusterStore
}

// buildStore opens the configured persistence backend.
func buildStore(ctx context.Context, cfg config.StoreConfig) (dataStore, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.DriverSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	default:
		slog.Warn("using in-memory store, nothing will be persisted across restarts")
		return memstore.NewStore(), func() {}, nil
	}
}

// buildBackend constructs the completion backend by name, mirroring the main
// server's wiring. "openai" uses the direct SDK client; everything else goes
// through the any-llm router.
func buildBackend(name, model, apiKey, baseURL string) (llm.Provider, error) {
	if name == "openai" {
		var opts []openai.Option
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return openai.New(apiKey, model, opts...)
	}

	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	return anyllm.New(name, model, opts...)
}
