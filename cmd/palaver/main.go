// Command palaver is the transcript topic-clustering service: it serves the
// dashboard's clustering API and, optionally, reclusters on a schedule.
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
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/palaverhq/palaver/internal/api"
	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/internal/config"
	"github.com/palaverhq/palaver/internal/health"
	"github.com/palaverhq/palaver/internal/observe"
	"github.com/palaverhq/palaver/internal/profile"
	"github.com/palaverhq/palaver/internal/resilience"
	"github.com/palaverhq/palaver/internal/sched"
	"github.com/palaverhq/palaver/pkg/provider/llm"
	"github.com/palaverhq/palaver/pkg/provider/llm/anyllm"
	"github.com/palaverhq/palaver/pkg/provider/llm/openai"
	"github.com/palaverhq/palaver/pkg/store"
	"github.com/palaverhq/palaver/pkg/store/memstore"
	"github.com/palaverhq/palaver/pkg/store/postgres"
	"github.com/palaverhq/palaver/pkg/store/sqlite"
)

const version = "1.0.0"

// defaultListenAddr is used when server.listen_addr is unset.
const defaultListenAddr = ":8764"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Secrets (API keys, DSNs) come from the environment; a .env file is a
	// local convenience, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "palaver: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "palaver: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
	slog.Info("palaver starting",
		"version", version,
		"config", *configPath,
		"store", cfg.Store.Driver,
		"llm", cfg.LLM.Provider+"/"+cfg.LLM.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "palaver",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	st, checks, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer closeStore()

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		slog.Error("failed to build completion provider", "err", err)
		return 1
	}

	// Log level and format follow config file edits without a restart; other
	// sections are only reported.
	watcher, err := config.NewWatcher(*configPath, applyConfigChange)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	engine := cluster.New(st, st, profile.NewAssembler(st), provider, engineOptions(cfg)...)

	server := api.NewServer(listenAddr(cfg), engine, health.New(checks...),
		observe.DefaultMetrics(), cfg.Server.ClusterTimeout.Std())

	var scheduler *sched.Runner
	if cfg.Schedule.Enabled {
		scheduler, err = sched.New(cfg.Schedule.Spec, engine, st)
		if err != nil {
			slog.Error("failed to build scheduler", "err", err)
			return 1
		}
		scheduler.Start(ctx)
		slog.Info("scheduled clustering enabled", "spec", cfg.Schedule.Spec)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr(cfg))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("HTTP server failed", "err", err)
			return 1
		}
		return 0
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Wiring
// ─────────────────────────────────────────────────────────────────────────────

// dataStore is the full persistence surface the engine needs. Every store
// backend implements all three seams.
type dataStore interface {
	store.TranscriptStore
	store.ProfileStore
	store.ClusterStore
}

// buildStore opens the configured persistence backend and returns it with
// its readiness checks and a close func.
func buildStore(ctx context.Context, cfg config.StoreConfig) (dataStore, []health.Checker, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, []health.Checker{health.ForPinger("postgres", s)}, s.Close, nil

	case config.DriverSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, []health.Checker{health.ForPinger("sqlite", s)}, func() { _ = s.Close() }, nil

	default:
		// Memory driver (and the empty default): data is gone on exit.
		slog.Warn("using in-memory store, nothing will be persisted across restarts")
		return memstore.NewStore(), nil, func() {}, nil
	}
}

// buildProvider constructs the completion gateway for the configured backend
// and wraps it in a failover chain when fallbacks are configured.
func buildProvider(cfg config.LLMConfig) (llm.Provider, error) {
	primary, err := buildBackend(cfg.Provider, cfg.Model, cfg.APIKey(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("primary %s/%s: %w", cfg.Provider, cfg.Model, err)
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewLLMFallback(primary, cfg.Provider, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Breaker.FailureThreshold,
			ResetTimeout: cfg.Breaker.Cooldown.Std(),
		},
	})
	for _, f := range cfg.Fallbacks {
		backend, err := buildBackend(f.Provider, f.Model, f.APIKey(), f.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("fallback %s/%s: %w", f.Provider, f.Model, err)
		}
		chain.AddFallback(f.Provider, backend)
	}
	return chain, nil
}

// buildBackend constructs one completion backend by name. "openai" uses the
// direct SDK client; everything else goes through the any-llm router.
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

// engineOptions maps the config's tuning knobs onto engine options, leaving
// unset values at the engine defaults.
func engineOptions(cfg *config.Config) []cluster.Option {
	var opts []cluster.Option
	if cfg.Clustering.MaxBatchSize > 0 {
		opts = append(opts, cluster.WithMaxBatchSize(cfg.Clustering.MaxBatchSize))
	}
	if cfg.Clustering.GapMinutes > 0 {
		opts = append(opts, cluster.WithGapThreshold(cfg.Clustering.GapThreshold()))
	}
	if cfg.Clustering.BatchDelayMS > 0 {
		opts = append(opts, cluster.WithBatchDelay(cfg.Clustering.BatchDelay()))
	}
	if cfg.Clustering.FreshnessWindowMinutes > 0 {
		opts = append(opts, cluster.WithFreshnessWindow(cfg.Clustering.FreshnessWindow()))
	}
	if cfg.LLM.MaxOutputTokens > 0 {
		opts = append(opts, cluster.WithMaxOutputTokens(cfg.LLM.MaxOutputTokens))
	}
	if cfg.LLM.Temperature != nil {
		opts = append(opts, cluster.WithTemperature(*cfg.LLM.Temperature))
	}
	return opts
}

func listenAddr(cfg *config.Config) string {
	if cfg.Server.ListenAddr != "" {
		return cfg.Server.ListenAddr
	}
	return defaultListenAddr
}

// applyConfigChange is the watcher callback: it hot-applies log settings and
// names the sections that need a restart to take effect.
func applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged || d.LogFormatChanged {
		slog.SetDefault(newLogger(new.LogLevel, new.LogFormat))
		slog.Info("log settings reloaded", "level", new.LogLevel, "format", new.LogFormat)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed, restart required to apply",
			"sections", d.RestartRequired)
	}
}

// newLogger builds the root logger from the configured level and format.
func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.Level()}
	if format == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
