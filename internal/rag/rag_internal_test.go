package rag

import (
	"testing"

	"github.com/webintel/webintel/pkg/llmclient"
)

func TestLooksSubstantive(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"", false},
		{llmclient.InsufficientData, false},
		{"I don't know the answer to that.", false},
		{"....???!!!", false},
		{"The CEO of Acme Corp is Jane Doe.", true},
	}
	for _, tc := range cases {
		if got := looksSubstantive(tc.answer); got != tc.want {
			t.Errorf("looksSubstantive(%q) = %v, want %v", tc.answer, got, tc.want)
		}
	}
}

func TestDedupeByURLKeepingBest(t *testing.T) {
	hits := []hit{
		{url: "https://a.example", text: "low", score: 0.2},
		{url: "https://a.example", text: "high", score: 0.9},
		{url: "https://b.example", text: "b", score: 0.5},
		{text: "no url", score: 0.1},
	}
	out := dedupeByURLKeepingBest(hits)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for _, h := range out {
		if h.url == "https://a.example" && h.text != "high" {
			t.Errorf("expected the higher-scoring version of https://a.example to survive, got %q", h.text)
		}
	}
}

func TestPickTopURLs_PrefersRankedOverCandidateOrder(t *testing.T) {
	candidates := []llmclient.SearchResultCandidate{
		{URL: "https://a.example"}, {URL: "https://b.example"}, {URL: "https://c.example"},
	}
	ranked := []llmclient.RankedSearchResult{
		{URL: "https://c.example", LLMScore: 90},
		{URL: "https://a.example", LLMScore: 10},
	}
	got := pickTopURLs(ranked, candidates, 2)
	if len(got) != 2 || got[0] != "https://c.example" || got[1] != "https://a.example" {
		t.Errorf("pickTopURLs = %v, want [c, a] by descending score", got)
	}
}

func TestPickTopURLs_FallsBackToCandidateOrderWhenUnranked(t *testing.T) {
	candidates := []llmclient.SearchResultCandidate{{URL: "https://a.example"}, {URL: "https://b.example"}}
	got := pickTopURLs(nil, candidates, 5)
	if len(got) != 2 || got[0] != "https://a.example" {
		t.Errorf("pickTopURLs = %v, want candidate order", got)
	}
}

func TestPickTopURLs_IgnoresHallucinatedURL(t *testing.T) {
	candidates := []llmclient.SearchResultCandidate{{URL: "https://a.example"}}
	ranked := []llmclient.RankedSearchResult{{URL: "https://not-a-candidate.example", LLMScore: 99}}
	got := pickTopURLs(ranked, candidates, 5)
	if len(got) != 1 || got[0] != "https://a.example" {
		t.Errorf("pickTopURLs = %v, want fallback to the real candidate only", got)
	}
}
