// Command webintel is the main entry point for the webintel server.
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

	"github.com/webintel/webintel/internal/app"
	"github.com/webintel/webintel/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "webintel: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "webintel: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("webintel starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Database registry ─────────────────────────────────────────────────────
	if err := applyDatabaseRegistry(cfg); err != nil {
		slog.Error("failed to apply database registry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Application wiring ────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, onConfigChange)
	if err != nil {
		slog.Warn("config hot-reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// onConfigChange logs which sections changed between polls. Crawl limits,
// RAG thresholds, and the log level are the only fields [config.Diff]
// tracks. The reloaded values are only logged; the running application
// keeps the configuration it was started with.
func onConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.LogLevelChanged && !diff.CrawlChanged && !diff.RAGChanged {
		return
	}
	slog.Info("config reloaded",
		"log_level_changed", diff.LogLevelChanged,
		"crawl_changed", diff.CrawlChanged,
		"rag_changed", diff.RAGChanged,
	)
}

// applyDatabaseRegistry loads cfg.Storage.RegistryPath, if set, and
// overrides Storage.PostgresDSN/VectorCollection with the registry's
// active entry, letting an operator switch investigation databases by
// editing the registry file instead of the YAML config. A missing
// registry path or an empty registry is not an error — Storage's own
// YAML-configured values are used as-is.
func applyDatabaseRegistry(cfg *config.Config) error {
	if cfg.Storage.RegistryPath == "" {
		return nil
	}
	registry, err := config.LoadDatabaseRegistry(cfg.Storage.RegistryPath)
	if err != nil {
		return fmt.Errorf("load database registry: %w", err)
	}
	active, err := registry.Active()
	if errors.Is(err, config.ErrDatabaseNotFound) {
		slog.Debug("database registry has no active entry — using storage config as-is", "path", cfg.Storage.RegistryPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve active database: %w", err)
	}
	cfg.Storage.PostgresDSN = active.PostgresDSN
	cfg.Storage.VectorCollection = active.VectorCollection
	slog.Info("database registry active entry applied", "name", active.Name, "vector_collection", active.VectorCollection)
	return nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama"},
	"embeddings": {"openai", "cohere"},
	"serp":       {"serpapi", "brave"},
}

func registerBuiltinProviders(reg *config.Registry) {
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("builtin provider has no registered constructor", "kind", kind, "name", name)
		}
	}
	_ = reg
}

func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if name := cfg.Providers.SERP.Name; name != "" {
		p, err := reg.CreateSERP(cfg.Providers.SERP)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "serp", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create serp provider %q: %w", name, err)
		} else {
			ps.SERP = p
			slog.Info("provider created", "kind", "serp", "name", name)
		}
	}

	return ps, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         webintel — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("SERP", cfg.Providers.SERP.Name, cfg.Providers.SERP.Model)
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
