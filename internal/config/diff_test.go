package config_test

import (
	"testing"

	"github.com/webintel/webintel/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		Crawl:  config.CrawlConfig{MaxDepth: 2, ScoreThreshold: 35},
		RAG:    config.RAGConfig{TopK: 10},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.CrawlChanged {
		t.Error("expected CrawlChanged=false for identical configs")
	}
	if d.RAGChanged {
		t.Error("expected RAGChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.CrawlChanged {
		t.Error("expected CrawlChanged=false")
	}
}

func TestDiff_CrawlChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Crawl: config.CrawlConfig{MaxDepth: 2, ScoreThreshold: 35}}
	new := &config.Config{Crawl: config.CrawlConfig{MaxDepth: 4, ScoreThreshold: 35}}

	d := config.Diff(old, new)
	if !d.CrawlChanged {
		t.Error("expected CrawlChanged=true")
	}
	if d.NewCrawl.MaxDepth != 4 {
		t.Errorf("expected NewCrawl.MaxDepth=4, got %d", d.NewCrawl.MaxDepth)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_RAGChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{RAG: config.RAGConfig{TopK: 10, QualityThreshold: 0.7}}
	new := &config.Config{RAG: config.RAGConfig{TopK: 15, QualityThreshold: 0.7}}

	d := config.Diff(old, new)
	if !d.RAGChanged {
		t.Error("expected RAGChanged=true")
	}
	if d.NewRAG.TopK != 15 {
		t.Errorf("expected NewRAG.TopK=15, got %d", d.NewRAG.TopK)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		Crawl:  config.CrawlConfig{MaxDepth: 2},
		RAG:    config.RAGConfig{TopK: 10},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelWarn},
		Crawl:  config.CrawlConfig{MaxDepth: 3},
		RAG:    config.RAGConfig{TopK: 10},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.CrawlChanged {
		t.Error("expected CrawlChanged=true")
	}
	if d.RAGChanged {
		t.Error("expected RAGChanged=false")
	}
	if d.NewLogLevel != config.LogLevelWarn {
		t.Errorf("expected NewLogLevel=warn, got %q", d.NewLogLevel)
	}
	if d.NewCrawl.MaxDepth != 3 {
		t.Errorf("expected NewCrawl.MaxDepth=3, got %d", d.NewCrawl.MaxDepth)
	}
}
