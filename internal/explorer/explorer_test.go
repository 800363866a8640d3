package explorer_test

import (
	"context"
	"testing"

	"github.com/webintel/webintel/internal/explorer"
	"github.com/webintel/webintel/pkg/fetcher"
	fetchermock "github.com/webintel/webintel/pkg/fetcher/mock"
	"github.com/webintel/webintel/pkg/llmclient"
	embedmock "github.com/webintel/webintel/pkg/provider/embeddings/mock"
	"github.com/webintel/webintel/pkg/provider/llm"
	llmmock "github.com/webintel/webintel/pkg/provider/llm/mock"
	"github.com/webintel/webintel/pkg/store/memstore"
	"github.com/webintel/webintel/pkg/urlscore"
)

const highConfidenceReply = `{"basic_info": {"founded": "1990"}, "verified": true, "confidence": 90, "reason": "matches profile"}`
const lowConfidenceReply = `{"basic_info": {"founded": "1990"}, "verified": true, "confidence": 40, "reason": "weak match"}`

func newExplorer(t *testing.T, fetch *fetchermock.Fetcher, reply string) (*explorer.Explorer, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	vectors := memstore.NewVectorStore(3)
	llmProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	embedProvider := &embedmock.Provider{EmbedResult: []float32{1, 0, 0}}
	return &explorer.Explorer{
		Fetcher: fetch,
		LLM:     llmclient.New(llmProvider, embedProvider),
		Pages:   st,
		Intel:   st,
		Graph:   st,
		Links:   st,
		Vectors: vectors,
		Priors:  urlscore.NewPriorStore(),
	}, st
}

func page(url, body string, outlinks ...fetcher.Outlink) fetcher.Result {
	return fetcher.Result{
		FinalURL: url,
		RawHTML:  "<html><head><title>Acme Corp</title></head><body><p>" + body + "</p></body></html>",
		Outlinks: outlinks,
	}
}

func TestExplore_HappyPath_SavesPageAndVerifiedFinding(t *testing.T) {
	const url = "https://acme.example/about"
	fetch := &fetchermock.Fetcher{Results: map[string]fetcher.Result{
		url: page(url, "Acme Corp is a company."),
	}}
	e, _ := newExplorer(t, fetch, highConfidenceReply)

	profile := urlscore.Profile{Name: "Acme Corp", Kind: "org"}
	cfg := explorer.Config{MaxPagesPerDomain: 25, MaxTotalPages: 10, MaxDepth: 4, ScoreThreshold: 0}

	results, err := e.Explore(context.Background(), profile, []string{url}, cfg)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	got := results[url]
	if got.Findings != 1 {
		t.Errorf("Findings = %d, want 1", got.Findings)
	}
	if got.Page.URL != url {
		t.Errorf("Page.URL = %q, want %q", got.Page.URL, url)
	}
	if e.Priors.DomainPriorWeight("acme.example") <= 0 {
		t.Error("expected domain prior boosted after high-confidence finding")
	}
}

func TestExplore_LowConfidenceFindingDiscarded(t *testing.T) {
	const url = "https://acme.example/about"
	fetch := &fetchermock.Fetcher{Results: map[string]fetcher.Result{
		url: page(url, "Acme Corp is a company."),
	}}
	e, _ := newExplorer(t, fetch, lowConfidenceReply)

	profile := urlscore.Profile{Name: "Acme Corp", Kind: "org"}
	cfg := explorer.Config{MaxPagesPerDomain: 25, MaxTotalPages: 10, MaxDepth: 4, ScoreThreshold: 0}

	results, err := e.Explore(context.Background(), profile, []string{url}, cfg)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	got := results[url]
	if got.Findings != 0 {
		t.Errorf("Findings = %d, want 0 (confidence below floor)", got.Findings)
	}
	if e.Priors.DomainPriorWeight("acme.example") != 0 {
		t.Error("domain prior should not be boosted when no finding clears the confidence floor")
	}
}

func TestExplore_NearDuplicateSecondPageSkipped(t *testing.T) {
	const url1 = "https://acme.example/page1"
	const url2 = "https://acme.example/page2"
	fetch := &fetchermock.Fetcher{Results: map[string]fetcher.Result{
		url1: page(url1, "Acme Corp is a company."),
		url2: page(url2, "Acme Corp is a company."),
	}}
	e, _ := newExplorer(t, fetch, highConfidenceReply)

	profile := urlscore.Profile{Name: "Acme Corp", Kind: "org"}
	cfg := explorer.Config{MaxPagesPerDomain: 25, MaxTotalPages: 10, MaxDepth: 4, ScoreThreshold: 0}

	results, err := e.Explore(context.Background(), profile, []string{url1, url2}, cfg)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (second page is a near-duplicate by embedding)", len(results))
	}
	if _, ok := results[url1]; !ok {
		t.Errorf("expected %s to be the surviving explored page, got %v", url1, results)
	}
}

func TestExplore_PerDomainCapEnforced(t *testing.T) {
	const url1 = "https://acme.example/a"
	const url2 = "https://acme.example/b"
	fetch := &fetchermock.Fetcher{Results: map[string]fetcher.Result{
		url1: page(url1, "Page A."),
		url2: page(url2, "Page B."),
	}}
	e, _ := newExplorer(t, fetch, highConfidenceReply)

	profile := urlscore.Profile{Name: "Acme Corp", Kind: "org"}
	cfg := explorer.Config{MaxPagesPerDomain: 1, MaxTotalPages: 10, MaxDepth: 4, ScoreThreshold: 0}

	results, err := e.Explore(context.Background(), profile, []string{url1, url2}, cfg)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (per-domain cap of 1)", len(results))
	}
}

func TestExplore_MaxDepthStopsOutlinkFollowing(t *testing.T) {
	const url = "https://acme.example/about"
	const outlink = "https://acme.example/team"
	fetch := &fetchermock.Fetcher{Results: map[string]fetcher.Result{
		url: page(url, "Acme Corp is a company.", fetcher.Outlink{URL: outlink, AnchorText: "Team"}),
	}}
	e, _ := newExplorer(t, fetch, highConfidenceReply)

	profile := urlscore.Profile{Name: "Acme Corp", Kind: "org"}
	cfg := explorer.Config{MaxPagesPerDomain: 25, MaxTotalPages: 10, MaxDepth: 0, ScoreThreshold: 0}

	results, err := e.Explore(context.Background(), profile, []string{url}, cfg)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if fetch.CallCount() != 1 {
		t.Errorf("fetch call count = %d, want 1 (MaxDepth=0 must stop outlink following)", fetch.CallCount())
	}
}

func TestExplore_FetchFailureDoesNotAbortCrawl(t *testing.T) {
	const bad = "https://acme.example/broken"
	const good = "https://other.example/about"
	fetch := &fetchermock.Fetcher{
		Results: map[string]fetcher.Result{good: page(good, "Acme Corp is a company.")},
		Errs:    map[string]error{bad: context.DeadlineExceeded},
	}
	e, _ := newExplorer(t, fetch, highConfidenceReply)

	profile := urlscore.Profile{Name: "Acme Corp", Kind: "org"}
	cfg := explorer.Config{MaxPagesPerDomain: 25, MaxTotalPages: 10, MaxDepth: 4, ScoreThreshold: 0}

	results, err := e.Explore(context.Background(), profile, []string{bad, good}, cfg)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (failed fetch is skipped, crawl continues)", len(results))
	}
	if _, ok := results[good]; !ok {
		t.Errorf("expected %s to be explored despite the other seed's fetch failure", good)
	}
}
