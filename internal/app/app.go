// Package app wires all webintel subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems (store, LLM client, Explorer, RAG Answerer, Agent Service, Task
// Queue, MCP Host), Run starts the background task queue, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithMCPHost, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/webintel/webintel/internal/agentservice"
	"github.com/webintel/webintel/internal/config"
	"github.com/webintel/webintel/internal/eventbus"
	"github.com/webintel/webintel/internal/explorer"
	"github.com/webintel/webintel/internal/health"
	"github.com/webintel/webintel/internal/mcp"
	"github.com/webintel/webintel/internal/mcp/mcphost"
	"github.com/webintel/webintel/internal/mcp/tools/fileio"
	"github.com/webintel/webintel/internal/mcp/tools/knowledgetool"
	"github.com/webintel/webintel/internal/observe"
	"github.com/webintel/webintel/internal/rag"
	"github.com/webintel/webintel/internal/resilience"
	"github.com/webintel/webintel/internal/seedprofile"
	"github.com/webintel/webintel/internal/taskqueue"
	"github.com/webintel/webintel/pkg/fetcher"
	"github.com/webintel/webintel/pkg/llmclient"
	"github.com/webintel/webintel/pkg/provider/embeddings"
	"github.com/webintel/webintel/pkg/provider/llm"
	"github.com/webintel/webintel/pkg/store"
	"github.com/webintel/webintel/pkg/store/memstore"
	"github.com/webintel/webintel/pkg/store/postgres"
	"github.com/webintel/webintel/pkg/urlscore"
)

// defaultSandboxDir is the fileio built-in tool's sandbox root when no
// override is injected.
const defaultSandboxDir = "./.webintel/sandbox"

// Providers holds one interface value per model-dependent provider slot.
// Nil means the provider is not configured. Populated by main.go via the
// config [Registry].
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	SERP       rag.SERPClient
}

// Store aggregates every pkg/store interface the application wires into
// a single dependency. Both [postgres.Store] and [memStore] satisfy it, so
// New accepts either as a single injected value.
type Store interface {
	store.PageStore
	store.IntelStore
	store.EntityGraph
	store.LinkStore
	store.VectorIndex
	store.TaskStore
}

// memStore combines [memstore.Store] (pages, intel, entity graph, links,
// tasks) with [memstore.VectorStore] (vectors, which memstore keeps
// separate since its dimension is fixed at construction) into one [Store].
type memStore struct {
	*memstore.Store
	*memstore.VectorStore
}

// App owns every subsystem's lifetime and wires together the Explorer, RAG
// Answerer, Agent Service, Task Queue, and MCP Host described by the
// platform's pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	store     Store
	metrics   *observe.Metrics
	llmClient *llmclient.Client
	fetcher   fetcher.Fetcher
	priors    *urlscore.PriorStore
	bus       *eventbus.Bus

	explorer *explorer.Explorer
	answerer *rag.Answerer
	agents   *agentservice.Service
	tasks    *taskqueue.Queue
	mcpHost  mcp.Host
	seeds    seedprofile.Store

	httpServer *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a [Store] instead of connecting to Postgres from config.
func WithStore(s Store) Option {
	return func(a *App) { a.store = s }
}

// WithMCPHost injects an MCP host instead of creating one from config.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.mcpHost = h }
}

// WithFetcher injects a [fetcher.Fetcher] instead of creating an
// [fetcher.HTTPFetcher].
func WithFetcher(f fetcher.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithSeedStore injects a [seedprofile.Store] instead of creating a
// [seedprofile.MemStore].
func WithSeedStore(s seedprofile.Store) Option {
	return func(a *App) { a.seeds = s }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config [Registry]). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection, MCP
// server registration + built-in tool registration + calibration, and
// Explorer/RAG Answerer/Agent Service/Task Queue assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if providers.LLM == nil {
		return nil, fmt.Errorf("app: providers.LLM is required")
	}
	if providers.Embeddings == nil {
		return nil, fmt.Errorf("app: providers.Embeddings is required")
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	if err := a.initMetrics(ctx); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	resilientLLM := resilience.NewLLMFallback(providers.LLM, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	a.llmClient = llmclient.New(resilientLLM, providers.Embeddings)

	if a.fetcher == nil {
		a.fetcher = fetcher.NewHTTPFetcher()
	}
	a.priors = urlscore.NewPriorStore()

	a.explorer = &explorer.Explorer{
		Fetcher: a.fetcher,
		LLM:     a.llmClient,
		Pages:   a.store,
		Intel:   a.store,
		Graph:   a.store,
		Links:   a.store,
		Vectors: a.store,
		Priors:  a.priors,
		Log:     a.log,
		Metrics: a.metrics,
	}

	a.bus = eventbus.New()

	a.answerer = &rag.Answerer{
		LLM:      a.llmClient,
		Vectors:  a.store,
		Intel:    a.store,
		Pages:    a.store,
		Explorer: a.explorer,
		SERP:     providers.SERP,
		Log:      a.log,
		Metrics:  a.metrics,
	}

	a.agents = agentservice.New(a.store, a.store, a.bus)

	a.tasks = a.buildTaskQueue()

	if a.seeds == nil {
		a.seeds = seedprofile.NewMemStore()
	}

	if err := a.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to Postgres using cfg.Storage, unless a Store was
// already injected via [WithStore]. Falls back to an in-memory store when
// no DSN is configured, which is convenient for local runs and demos but
// loses all data on restart.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dims := a.cfg.Storage.EmbeddingDimensions
	if dims == 0 {
		dims = 384
	}

	if a.cfg.Storage.PostgresDSN == "" {
		a.log.Warn("storage.postgres_dsn not set, using in-memory store (no persistence across restarts)")
		a.store = memStore{Store: memstore.New(), VectorStore: memstore.NewVectorStore(dims)}
		return nil
	}

	pg, err := postgres.NewStore(ctx, a.cfg.Storage.PostgresDSN, dims)
	if err != nil {
		return fmt.Errorf("connect postgres store: %w", err)
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// metricsOnce guards global OTel provider initialisation: the Prometheus
// exporter registers its collector with the default registerer, which
// returns an error on a second registration, so only the first App in a process
// calls [observe.InitProvider]. Every App shares the resulting
// [observe.Metrics] instance; only the first registers the teardown closer.
var (
	metricsOnce    sync.Once
	sharedMetrics  *observe.Metrics
	sharedShutdown func(context.Context) error
	metricsInitErr error
)

// initMetrics initialises the OpenTelemetry SDK (Prometheus exporter bridge
// for metrics, a no-op-exported tracer provider) and builds the shared
// [observe.Metrics] instance every instrumented subsystem records through.
func (a *App) initMetrics(ctx context.Context) error {
	isFirst := false
	metricsOnce.Do(func() {
		isFirst = true
		sharedShutdown, metricsInitErr = observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "webintel"})
		if metricsInitErr == nil {
			sharedMetrics = observe.DefaultMetrics()
		}
	})
	if metricsInitErr != nil {
		return fmt.Errorf("init otel provider: %w", metricsInitErr)
	}
	a.metrics = sharedMetrics
	if isFirst {
		a.closers = append(a.closers, func() error { return sharedShutdown(context.Background()) })
	}
	return nil
}

// buildTaskQueue constructs the Task Queue and registers the handlers that
// back its two task types: "explore" runs an Explorer pass for a seed
// profile, "answer" runs the RAG Answerer for a submitted question.
func (a *App) buildTaskQueue() *taskqueue.Queue {
	poll := time.Duration(a.cfg.TaskQueue.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = time.Second
	}
	q := taskqueue.New(a.store, a.bus, a.cfg.TaskQueue.IOConcurrency,
		taskqueue.WithPollInterval(poll),
		taskqueue.WithLogger(a.log),
		taskqueue.WithMetrics(a.metrics),
	)
	q.RegisterHandler("explore", taskqueue.CategoryIO, a.handleExploreTask)
	q.RegisterHandler("answer", taskqueue.CategoryLLM, a.handleAnswerTask)
	return q
}

// initMCP sets up the MCP host, registers configured servers and the
// built-in tool set, then calibrates.
func (a *App) initMCP(ctx context.Context) error {
	if a.mcpHost == nil {
		host := mcphost.New()
		a.mcpHost = host

		for _, tool := range fileio.NewTools(defaultSandboxDir) {
			if err := host.RegisterBuiltin(mcphost.BuiltinTool(tool)); err != nil {
				return fmt.Errorf("register builtin tool %q: %w", tool.Definition.Name, err)
			}
		}
		for _, tool := range knowledgetool.NewTools(a.store, a.store) {
			if err := host.RegisterBuiltin(mcphost.BuiltinTool(tool)); err != nil {
				return fmt.Errorf("register builtin tool %q: %w", tool.Definition.Name, err)
			}
		}
	}
	a.closers = append(a.closers, a.mcpHost.Close)

	for _, srv := range a.cfg.MCP.Servers {
		serverCfg := mcp.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := a.mcpHost.RegisterServer(ctx, serverCfg); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		a.log.Info("registered MCP server", "name", srv.Name)
	}

	if err := a.mcpHost.Calibrate(ctx); err != nil {
		a.log.Warn("MCP calibration failed, using declared latencies", "err", err)
	}

	return nil
}

// initHealth builds the /healthz and /readyz handler and an *http.Server to
// serve it on cfg.Server.ListenAddr. The store checker does a cheap bounded
// List call; provider checkers just confirm the slot was configured, since
// none of llm.Provider/embeddings.Provider/rag.SERPClient expose a cheap
// no-op probe call.
func (a *App) initHealth() {
	checkers := []health.Checker{
		{Name: "store", Check: func(ctx context.Context) error {
			_, err := a.store.List(ctx, store.PageFilter{}, 1)
			return err
		}},
		{Name: "llm", Check: func(context.Context) error {
			if a.providers.LLM == nil {
				return fmt.Errorf("no llm provider configured")
			}
			return nil
		}},
		{Name: "embeddings", Check: func(context.Context) error {
			if a.providers.Embeddings == nil {
				return fmt.Errorf("no embeddings provider configured")
			}
			return nil
		}},
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpServer = &http.Server{Addr: addr, Handler: observe.Middleware(a.metrics)(mux)}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the wired relational + vector store.
func (a *App) Store() Store { return a.store }

// Explorer returns the Explorer wired to this app's store and providers.
func (a *App) Explorer() *explorer.Explorer { return a.explorer }

// Answerer returns the RAG Answerer.
func (a *App) Answerer() *rag.Answerer { return a.answerer }

// AgentService returns the Agent Service.
func (a *App) AgentService() *agentservice.Service { return a.agents }

// TaskQueue returns the Task Queue.
func (a *App) TaskQueue() *taskqueue.Queue { return a.tasks }

// MCPHost returns the MCP host.
func (a *App) MCPHost() mcp.Host { return a.mcpHost }

// SeedStore returns the seed-profile store.
func (a *App) SeedStore() seedprofile.Store { return a.seeds }

// EventBus returns the in-process progress event bus.
func (a *App) EventBus() *eventbus.Bus { return a.bus }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run recovers tasks left running by a crashed prior process, starts the
// health/readiness HTTP server, then starts the Task Queue's poll loop. It
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.tasks.Recover(ctx); err != nil {
		return fmt.Errorf("app: recover tasks: %w", err)
	}

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("health server error", "err", err)
		}
	}()

	a.log.Info("app running", "health_addr", a.httpServer.Addr)
	return a.tasks.Run(ctx)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.log.Warn("health server shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
