package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists the backend names the completion gateway knows how
// to construct. Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Bounds for clustering.max_batch_size. Below the lower bound a busy day
// fans out into too many gateway calls; above it prompts grow so large the
// model starts losing track of individual transcripts.
const (
	minBatchSize = 25
	maxBatchSize = 40
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos surface at startup instead of being
// silently ignored. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Conditions that do not prevent startup, such as an API key variable that
// is not set, are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.LogFormat != "" && !cfg.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("log_format %q is invalid; valid values: text, json", cfg.LogFormat))
	}
	if cfg.Server.ClusterTimeout < 0 {
		errs = append(errs, errors.New("server.cluster_timeout must not be negative"))
	}

	errs = append(errs, validateLLM(&cfg.LLM)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateClustering(&cfg.Clustering)...)
	errs = append(errs, validateSchedule(&cfg.Schedule)...)

	return errors.Join(errs...)
}

func validateLLM(c *LLMConfig) []error {
	var errs []error

	if c.Provider == "" {
		slog.Warn("llm.provider is not configured; clustering runs will fail until one is set")
	} else {
		validateProviderName(c.Provider)
		if c.Model == "" {
			errs = append(errs, errors.New("llm.model is required when llm.provider is set"))
		}
	}
	warnUnsetKeyEnv("llm.api_key_env", c.APIKeyEnv)

	if c.MaxOutputTokens < 0 {
		errs = append(errs, errors.New("llm.max_output_tokens must not be negative"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("llm.temperature %v is out of range [0, 2]", *c.Temperature))
	}

	for i, fb := range c.Fallbacks {
		prefix := fmt.Sprintf("llm.fallbacks[%d]", i)
		if fb.Provider == "" {
			errs = append(errs, fmt.Errorf("%s.provider is required", prefix))
		} else {
			validateProviderName(fb.Provider)
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		warnUnsetKeyEnv(prefix+".api_key_env", fb.APIKeyEnv)
	}

	if c.Breaker.FailureThreshold < 0 {
		errs = append(errs, errors.New("llm.breaker.failure_threshold must not be negative"))
	}
	if c.Breaker.Cooldown < 0 {
		errs = append(errs, errors.New("llm.breaker.cooldown must not be negative"))
	}
	return errs
}

func validateStore(c *StoreConfig) []error {
	var errs []error

	switch c.Driver {
	case "", DriverMemory:
		slog.Warn("store driver is memory; transcripts and cluster sets are lost on exit")
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when store.driver is postgres"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required when store.driver is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: postgres, sqlite, memory", c.Driver))
	}
	return errs
}

func validateClustering(c *ClusteringConfig) []error {
	var errs []error

	if c.MaxBatchSize != 0 && (c.MaxBatchSize < minBatchSize || c.MaxBatchSize > maxBatchSize) {
		errs = append(errs, fmt.Errorf("clustering.max_batch_size %d is out of range [%d, %d]", c.MaxBatchSize, minBatchSize, maxBatchSize))
	}
	if c.GapMinutes < 0 {
		errs = append(errs, errors.New("clustering.gap_minutes must not be negative"))
	}
	if c.BatchDelayMS < 0 {
		errs = append(errs, errors.New("clustering.batch_delay_ms must not be negative"))
	}
	if c.FreshnessWindowMinutes < 0 {
		errs = append(errs, errors.New("clustering.freshness_window_minutes must not be negative"))
	}
	return errs
}

func validateSchedule(c *ScheduleConfig) []error {
	var errs []error

	if c.Enabled && c.Spec == "" {
		errs = append(errs, errors.New("schedule.spec is required when schedule.enabled is true"))
	}
	if c.Spec != "" {
		if _, err := cron.ParseStandard(c.Spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule.spec %q is not a valid cron expression: %v", c.Spec, err))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is not found in
// [ValidLLMProviders]. Not an error: the gateway library may support
// backends this list has not caught up with.
func validateProviderName(name string) {
	if slices.Contains(ValidLLMProviders, name) {
		return
	}
	slog.Warn("unknown llm provider name, may be a typo or a new backend",
		"name", name,
		"known", ValidLLMProviders,
	)
}

// warnUnsetKeyEnv logs a warning when a configured api_key_env variable is
// absent from the environment. Startup proceeds; the key may be injected
// later by the process manager.
func warnUnsetKeyEnv(field, env string) {
	if env == "" {
		return
	}
	if _, ok := os.LookupEnv(env); !ok {
		slog.Warn("api_key_env names an environment variable that is not set",
			"field", field,
			"env", env,
		)
	}
}
