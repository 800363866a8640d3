package llmclient_test

import (
	"context"
	"strings"
	"testing"

	"github.com/webintel/webintel/pkg/llmclient"
	embedmock "github.com/webintel/webintel/pkg/provider/embeddings/mock"
	"github.com/webintel/webintel/pkg/provider/llm"
	llmmock "github.com/webintel/webintel/pkg/provider/llm/mock"
	"github.com/webintel/webintel/pkg/urlscore"
)

func TestEmbed(t *testing.T) {
	embedder := &embedmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}
	c := llmclient.New(&llmmock.Provider{}, embedder)

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
	if len(embedder.EmbedCalls) != 1 || embedder.EmbedCalls[0].Text != "hello" {
		t.Errorf("EmbedCalls = %+v", embedder.EmbedCalls)
	}
}

func TestSummarizePage_ShortInput(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "a short summary"}}
	c := llmclient.New(provider, &embedmock.Provider{})

	summary, err := c.SummarizePage(context.Background(), "short text")
	if err != nil {
		t.Fatalf("SummarizePage: %v", err)
	}
	if summary != "a short summary" {
		t.Errorf("summary = %q", summary)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Errorf("CompleteCalls = %d, want 1 for short input", len(provider.CompleteCalls))
	}
}

func TestSummarizePage_ChunksLongInput(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "chunk summary"}}
	c := llmclient.New(provider, &embedmock.Provider{}, llmclient.WithChunkSize(10))

	longText := strings.Repeat("word ", 50)
	summary, err := c.SummarizePage(context.Background(), longText)
	if err != nil {
		t.Fatalf("SummarizePage: %v", err)
	}
	if summary != "chunk summary" {
		t.Errorf("summary = %q", summary)
	}
	if len(provider.CompleteCalls) < 2 {
		t.Errorf("CompleteCalls = %d, want >1 for chunked input", len(provider.CompleteCalls))
	}
}

func TestExtractIntelligence_ParsesKnownSections(t *testing.T) {
	reply := `{"basic_info": {"founded": "1990"}, "persons": [{"name": "Jane"}], "unknown_key": "drop me"}`
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	c := llmclient.New(provider, &embedmock.Provider{})

	profile := urlscore.Profile{Name: "Acme", Kind: "company"}
	finding, err := c.ExtractIntelligence(context.Background(), profile, "page text", "profile", "https://acme.com", nil)
	if err != nil {
		t.Fatalf("ExtractIntelligence: %v", err)
	}
	if _, ok := finding.Payload["basic_info"]; !ok {
		t.Error("expected basic_info in payload")
	}
	if _, ok := finding.Payload["persons"]; !ok {
		t.Error("expected persons in payload")
	}
	if _, ok := finding.Payload["unknown_key"]; ok {
		t.Error("unknown_key should have been dropped")
	}
}

func TestExtractIntelligence_MalformedReplyDegradesGracefully(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "not json at all"}}
	c := llmclient.New(provider, &embedmock.Provider{})

	profile := urlscore.Profile{Name: "Acme", Kind: "company"}
	finding, err := c.ExtractIntelligence(context.Background(), profile, "text", "profile", "https://acme.com", nil)
	if err != nil {
		t.Fatalf("ExtractIntelligence should not error on malformed reply: %v", err)
	}
	if len(finding.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", finding.Payload)
	}
}

func TestExtractIntelligence_StripsMarkdownFence(t *testing.T) {
	reply := "```json\n{\"basic_info\": {\"founded\": \"1990\"}}\n```"
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	c := llmclient.New(provider, &embedmock.Provider{})

	profile := urlscore.Profile{Name: "Acme", Kind: "company"}
	finding, err := c.ExtractIntelligence(context.Background(), profile, "text", "profile", "https://acme.com", nil)
	if err != nil {
		t.Fatalf("ExtractIntelligence: %v", err)
	}
	if _, ok := finding.Payload["basic_info"]; !ok {
		t.Errorf("expected basic_info to survive fence stripping, got %v", finding.Payload)
	}
}

func TestReflectAndVerify_ClampsConfidence(t *testing.T) {
	reply := `{"verified": true, "confidence": 150, "reason": "strong match"}`
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	c := llmclient.New(provider, &embedmock.Provider{})

	profile := urlscore.Profile{Name: "Acme", Kind: "company"}
	finding := llmclient.Finding{PageURL: "https://acme.com", Payload: map[string]any{"basic_info": map[string]any{"founded": "1990"}}}

	v, err := c.ReflectAndVerify(context.Background(), profile, finding)
	if err != nil {
		t.Fatalf("ReflectAndVerify: %v", err)
	}
	if !v.Verified || v.Confidence != 100 {
		t.Errorf("Verification = %+v, want verified=true confidence=100", v)
	}
}

func TestReflectAndVerify_MalformedReplyMeansUnverified(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "nonsense"}}
	c := llmclient.New(provider, &embedmock.Provider{})

	v, err := c.ReflectAndVerify(context.Background(), urlscore.Profile{Name: "Acme"}, llmclient.Finding{})
	if err != nil {
		t.Fatalf("ReflectAndVerify: %v", err)
	}
	if v.Verified || v.Confidence != 0 {
		t.Errorf("Verification = %+v, want unverified zero-confidence", v)
	}
}

func TestRankLinks_ClampsScores(t *testing.T) {
	reply := `[{"url": "https://acme.com/about", "llm_score": 999}, {"url": "https://acme.com/blog", "llm_score": -5}]`
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	c := llmclient.New(provider, &embedmock.Provider{})

	candidates := []llmclient.LinkCandidate{
		{URL: "https://acme.com/about", AnchorText: "About"},
		{URL: "https://acme.com/blog", AnchorText: "Blog"},
	}
	ranked, err := c.RankLinks(context.Background(), urlscore.Profile{Name: "Acme"}, "homepage", candidates)
	if err != nil {
		t.Fatalf("RankLinks: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("len(ranked) = %d, want 2", len(ranked))
	}
	if ranked[0].LLMScore != 100 {
		t.Errorf("ranked[0].LLMScore = %d, want clamped to 100", ranked[0].LLMScore)
	}
	if ranked[1].LLMScore != 0 {
		t.Errorf("ranked[1].LLMScore = %d, want clamped to 0", ranked[1].LLMScore)
	}
}

func TestRankLinks_EmptyCandidatesShortCircuits(t *testing.T) {
	provider := &llmmock.Provider{}
	c := llmclient.New(provider, &embedmock.Provider{})

	ranked, err := c.RankLinks(context.Background(), urlscore.Profile{}, "ctx", nil)
	if err != nil || ranked != nil {
		t.Errorf("RankLinks(nil) = %v, %v, want nil, nil", ranked, err)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Error("expected no LLM call for empty candidates")
	}
}

func TestGenerateSeedQueries_FallsBackToQuestionOnMalformedReply(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "not an array"}}
	c := llmclient.New(provider, &embedmock.Provider{})

	queries, err := c.GenerateSeedQueries(context.Background(), "who is the CEO?", "Acme")
	if err != nil {
		t.Fatalf("GenerateSeedQueries: %v", err)
	}
	if len(queries) != 1 || queries[0] != "who is the CEO?" {
		t.Errorf("queries = %v, want fallback to original question", queries)
	}
}

func TestGenerateSeedQueries_ParsesArray(t *testing.T) {
	reply := `["Acme CEO name", "who leads Acme", "Acme chief executive"]`
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	c := llmclient.New(provider, &embedmock.Provider{})

	queries, err := c.GenerateSeedQueries(context.Background(), "who is the CEO?", "Acme")
	if err != nil {
		t.Fatalf("GenerateSeedQueries: %v", err)
	}
	if len(queries) != 3 {
		t.Errorf("queries = %v, want 3", queries)
	}
}

func TestSynthesizeAnswer_ReturnsSentinelVerbatim(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: llmclient.InsufficientData}}
	c := llmclient.New(provider, &embedmock.Provider{})

	answer, err := c.SynthesizeAnswer(context.Background(), "who is the CEO?", nil)
	if err != nil {
		t.Fatalf("SynthesizeAnswer: %v", err)
	}
	if answer != llmclient.InsufficientData {
		t.Errorf("answer = %q, want sentinel", answer)
	}
}

func TestEvaluateSufficiency_EmptyAndSentinelAreInsufficient(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "true"}}
	c := llmclient.New(provider, &embedmock.Provider{})

	ok, err := c.EvaluateSufficiency(context.Background(), "")
	if err != nil || ok {
		t.Errorf("EvaluateSufficiency(\"\") = %v, %v, want false, nil", ok, err)
	}
	ok, err = c.EvaluateSufficiency(context.Background(), llmclient.InsufficientData)
	if err != nil || ok {
		t.Errorf("EvaluateSufficiency(sentinel) = %v, %v, want false, nil", ok, err)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Error("expected no LLM call for short-circuited inputs")
	}
}

func TestEvaluateSufficiency_ParsesBoolean(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "TRUE"}}
	c := llmclient.New(provider, &embedmock.Provider{})

	ok, err := c.EvaluateSufficiency(context.Background(), "The CEO is Jane Doe.")
	if err != nil {
		t.Fatalf("EvaluateSufficiency: %v", err)
	}
	if !ok {
		t.Error("expected sufficiency true")
	}
}
