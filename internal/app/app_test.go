package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/webintel/webintel/internal/app"
	"github.com/webintel/webintel/internal/config"
	mcpmock "github.com/webintel/webintel/internal/mcp/mock"
	embeddingsmock "github.com/webintel/webintel/pkg/provider/embeddings/mock"
	llmmock "github.com/webintel/webintel/pkg/provider/llm/mock"
	"github.com/webintel/webintel/pkg/store/memstore"
)

// testConfig returns a minimal config with in-memory storage and no MCP
// servers, suitable for tests that inject a Store.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0", LogLevel: config.LogLevelInfo},
		Storage: config.StorageConfig{
			EmbeddingDimensions: 3,
		},
		TaskQueue: config.TaskQueueConfig{
			IOConcurrency:       2,
			PollIntervalSeconds: 1,
		},
	}
}

// testProviders returns providers with mock LLM/embeddings backends.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: &embeddingsmock.Provider{DimensionsValue: 3},
	}
}

// testStore combines a memstore.Store with a matching memstore.VectorStore
// into a value satisfying app.Store, mirroring app.memStore.
type testStore struct {
	*memstore.Store
	*memstore.VectorStore
}

func newTestStore() testStore {
	return testStore{Store: memstore.New(), VectorStore: memstore.NewVectorStore(3)}
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	providers := testProviders()
	mcpHost := &mcpmock.Host{}

	application, err := app.New(
		context.Background(),
		cfg,
		providers,
		app.WithStore(newTestStore()),
		app.WithMCPHost(mcpHost),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}

	// MCP host should have been calibrated during New().
	if got := mcpHost.CallCount("Calibrate"); got != 1 {
		t.Errorf("Calibrate call count = %d, want 1", got)
	}
}

func TestNew_RequiresLLMProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	providers := &app.Providers{Embeddings: &embeddingsmock.Provider{DimensionsValue: 3}}

	_, err := app.New(context.Background(), cfg, providers, app.WithStore(newTestStore()))
	if err == nil {
		t.Fatal("expected error when providers.LLM is nil")
	}
}

func TestNew_RequiresEmbeddingsProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	providers := &app.Providers{LLM: &llmmock.Provider{}}

	_, err := app.New(context.Background(), cfg, providers, app.WithStore(newTestStore()))
	if err == nil {
		t.Fatal("expected error when providers.Embeddings is nil")
	}
}

func TestNew_WiresAccessors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	providers := testProviders()
	mcpHost := &mcpmock.Host{}

	application, err := app.New(
		context.Background(),
		cfg,
		providers,
		app.WithStore(newTestStore()),
		app.WithMCPHost(mcpHost),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if application.Explorer() == nil {
		t.Error("Explorer() returned nil")
	}
	if application.Answerer() == nil {
		t.Error("Answerer() returned nil")
	}
	if application.AgentService() == nil {
		t.Error("AgentService() returned nil")
	}
	if application.TaskQueue() == nil {
		t.Error("TaskQueue() returned nil")
	}
	if application.SeedStore() == nil {
		t.Error("SeedStore() returned nil")
	}
	if application.MCPHost() != mcpHost {
		t.Error("MCPHost() did not return the injected mock")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	providers := testProviders()
	mcpHost := &mcpmock.Host{}

	application, err := app.New(
		context.Background(),
		cfg,
		providers,
		app.WithStore(newTestStore()),
		app.WithMCPHost(mcpHost),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// MCP host Close should have been called during shutdown.
	if got := mcpHost.CallCount("Close"); got != 1 {
		t.Errorf("MCP Host Close call count = %d, want 1", got)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	providers := testProviders()
	mcpHost := &mcpmock.Host{}

	application, err := app.New(
		context.Background(),
		cfg,
		providers,
		app.WithStore(newTestStore()),
		app.WithMCPHost(mcpHost),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	// Give Run a moment to start the task queue's poll loop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
