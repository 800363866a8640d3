package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/webintel/webintel/internal/mcp"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anyllm", "ollama"},
	"embeddings": {"openai", "ollama"},
	"serp":       {"searxng", "serpapi", "brave"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
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

// LoadFromReader decodes a YAML config from r, applies environment
// overrides, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets deployment secrets and endpoints be supplied via
// environment variables instead of the YAML file, so API keys never need to
// be checked into a config file. Each override is named for the field it
// replaces; dotted config paths are not generically mapped, matching the
// explicit per-field idiom the wider example corpus uses for env overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBINTEL_LLM_API_KEY"); v != "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv("WEBINTEL_LLM_BASE_URL"); v != "" {
		cfg.Providers.LLM.BaseURL = v
	}
	if v := os.Getenv("WEBINTEL_EMBEDDINGS_API_KEY"); v != "" {
		cfg.Providers.Embeddings.APIKey = v
	}
	if v := os.Getenv("WEBINTEL_SERP_API_KEY"); v != "" {
		cfg.Providers.SERP.APIKey = v
	}
	if v := os.Getenv("WEBINTEL_SERP_BASE_URL"); v != "" {
		cfg.Providers.SERP.BaseURL = v
	}
	if v := os.Getenv("WEBINTEL_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("WEBINTEL_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("WEBINTEL_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("WEBINTEL_CRAWL_SCORE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawl.ScoreThreshold = n
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("serp", cfg.Providers.SERP.Name)

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 384")
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; persistence will not be available across restarts")
	}

	// Crawl bounds
	if cfg.Crawl.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("crawl.max_depth must be >= 0, got %d", cfg.Crawl.MaxDepth))
	}
	if cfg.Crawl.ScoreThreshold < 0 {
		errs = append(errs, fmt.Errorf("crawl.score_threshold must be >= 0, got %d", cfg.Crawl.ScoreThreshold))
	}

	// RAG thresholds
	if cfg.RAG.QualityThreshold < 0 || cfg.RAG.QualityThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.quality_threshold must be in [0, 1], got %.2f", cfg.RAG.QualityThreshold))
	}
	if cfg.RAG.MinHighQualityHits < 0 {
		errs = append(errs, fmt.Errorf("rag.min_high_quality_hits must be >= 0, got %d", cfg.RAG.MinHighQualityHits))
	}

	// Agent weights — the priority formula assumes they sum to 1 (spec §4.10).
	if sum := cfg.Agent.PriorityWeightUnknown + cfg.Agent.PriorityWeightRelation; cfg.Agent.PriorityWeightUnknown != 0 && (sum < 0.99 || sum > 1.01) {
		errs = append(errs, fmt.Errorf("agent.priority_weight_unknown + agent.priority_weight_relation must sum to 1.0, got %.2f", sum))
	}

	// Task queue
	if cfg.TaskQueue.IOConcurrency < 0 {
		errs = append(errs, fmt.Errorf("task_queue.io_concurrency must be >= 0, got %d", cfg.TaskQueue.IOConcurrency))
	}

	// MCP servers
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
