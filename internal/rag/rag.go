// Package rag implements the RAG Answerer (spec §4.12): a four-phase
// retrieve→expand→retry→crawl pipeline that answers a question from the
// dual store, escalating to live web search only when local context
// proves insufficient.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/webintel/webintel/internal/explorer"
	"github.com/webintel/webintel/internal/observe"
	"github.com/webintel/webintel/pkg/llmclient"
	"github.com/webintel/webintel/pkg/store"
	"github.com/webintel/webintel/pkg/urlscore"
)

const (
	topKVector            = 8
	topKKeyword           = 8
	highQualitySimilarity = 0.7
	minHighQualityHits    = 2
	minExpandedRunes      = 400
	maxExpansionRounds    = 3
	serpCandidateLimit    = 5
	crawlMaxPages         = 5
	crawlScoreThreshold   = 10
)

// SERPResult is one result returned by an external search-engine
// adapter (spec §4.12 Phase 4's "configured SERP adapter").
type SERPResult struct {
	URL     string
	Title   string
	Snippet string
}

// SERPClient resolves search queries to candidate URLs. Implementations
// wrap whatever external search API is configured; webintel ships none
// of its own, matching spec §4.12's "external" SERP adapter boundary.
type SERPClient interface {
	Search(ctx context.Context, query string, limit int) ([]SERPResult, error)
}

// Snippet is one piece of retrieved context offered alongside the final
// answer, tagged with its origin for citation (spec §4.12).
type Snippet struct {
	URL    string
	Text   string
	Source string // "rag" (Vector Index) or "sql" (Intelligence keyword search)
	Score  float64
}

// Answer is the RAG Answerer's full result (spec §4.12).
type Answer struct {
	Text                  string
	Context               []Snippet
	OnlineSearchTriggered bool
	RetryAttempted        bool
	ParaphrasedQueries    []string
	RAGHitCount           int
	SQLHitCount           int
}

// Answerer wires the Vector Index, Intel Store, Page Store, LLM Client,
// a bounded Explorer, and an optional SERP adapter into the four-phase
// answer pipeline.
type Answerer struct {
	LLM      *llmclient.Client
	Vectors  store.VectorIndex
	Intel    store.IntelStore
	Pages    store.PageStore
	Explorer *explorer.Explorer
	SERP     SERPClient
	Log      *slog.Logger

	// Metrics records end-to-end answer latency. Nil disables instrumentation.
	Metrics *observe.Metrics
}

// hit is an internal working representation of one retrieved snippet,
// carrying enough of its source vector payload to support Phase 2
// expansion before being flattened into a public Snippet.
type hit struct {
	url        string
	text       string
	source     string
	score      float64
	kind       store.VectorKind
	chunkIndex int
	vector     []float32
}

// sentenceNeighborFetchLimit bounds how many page_sentence points are
// pulled back per page when walking chunk-index neighbours in Phase 2,
// comfortably above explorer's per-page sentence-chunk cap.
const sentenceNeighborFetchLimit = 64

// Ask answers question, optionally scoped to entityScope (an entity
// name used to filter Vector Index hits; pass "" for no scope),
// escalating through Phases 2-4 only as far as needed to produce a
// sufficient answer (spec §4.12).
func (a *Answerer) Ask(ctx context.Context, question, entityScope string) (Answer, error) {
	if a.Metrics != nil {
		start := time.Now()
		defer func() { a.Metrics.RAGAnswerDuration.Record(ctx, time.Since(start).Seconds()) }()
	}

	var result Answer

	hits, err := a.retrieve(ctx, question, entityScope)
	if err != nil {
		return Answer{}, fmt.Errorf("rag: phase 1: %w", err)
	}
	hits = a.expand(ctx, hits)

	if text, ok, err := a.trySynthesize(ctx, question, hits); err != nil {
		return Answer{}, fmt.Errorf("rag: synthesize: %w", err)
	} else if ok {
		return a.finish(result, text, hits), nil
	}

	if countHighQuality(hits) < minHighQualityHits {
		result.RetryAttempted = true
		hits, result.ParaphrasedQueries = a.retryWithParaphrases(ctx, question, entityScope, hits)

		if text, ok, err := a.trySynthesize(ctx, question, hits); err != nil {
			return Answer{}, fmt.Errorf("rag: synthesize after retry: %w", err)
		} else if ok {
			return a.finish(result, text, hits), nil
		}
	}

	if a.SERP != nil && a.Explorer != nil {
		result.OnlineSearchTriggered = true
		if err := a.crawlLive(ctx, question, entityScope); err != nil {
			a.logWarn("phase 4 live crawl failed", "err", err)
		} else if fresh, err := a.retrieve(ctx, question, entityScope); err == nil {
			hits = a.expand(ctx, fresh)
		}
	}

	text, err := a.LLM.SynthesizeAnswer(ctx, question, toContextSnippets(hits))
	if err != nil {
		return Answer{}, fmt.Errorf("rag: final synthesize: %w", err)
	}
	if text == llmclient.InsufficientData {
		text = insufficientDataFallback
	}
	return a.finish(result, text, hits), nil
}

// insufficientDataFallback is the user-visible message substituted for
// the literal llmclient.InsufficientData sentinel when even the final
// phase fails to produce a sufficient answer (spec §7).
const insufficientDataFallback = "I searched online but still couldn't find a definitive answer"

func (a *Answerer) finish(result Answer, text string, hits []hit) Answer {
	result.Text = text
	result.Context = toSnippets(hits)
	for _, h := range hits {
		if h.source == "rag" {
			result.RAGHitCount++
		} else {
			result.SQLHitCount++
		}
	}
	return result
}

// trySynthesize synthesizes an answer from hits and reports whether it
// is sufficient per evaluate_sufficiency AND the non-refusal heuristic
// (spec §4.12). Returns ("", false, nil) when insufficient, not an
// error — insufficiency is an expected outcome that drives escalation.
func (a *Answerer) trySynthesize(ctx context.Context, question string, hits []hit) (string, bool, error) {
	if len(hits) == 0 {
		return "", false, nil
	}
	text, err := a.LLM.SynthesizeAnswer(ctx, question, toContextSnippets(hits))
	if err != nil {
		return "", false, err
	}
	sufficient, err := a.LLM.EvaluateSufficiency(ctx, text)
	if err != nil {
		return "", false, err
	}
	if !sufficient || !looksSubstantive(text) {
		return "", false, nil
	}
	return text, true, nil
}

// refusalPhrases are fixed "I don't know" admissions the non-refusal
// heuristic screens for, alongside the sufficiency judgement (spec
// §4.12).
var refusalPhrases = []string{
	"i don't know", "i do not know", "i'm not sure", "i am not sure",
	"cannot find", "can't find", "no information", "not enough information",
	"unable to determine", "not available in the provided",
}

// looksSubstantive applies spec §4.12's non-refusal heuristic: the
// answer must not match a fixed refusal phrase and must not be
// dominated by non-alphanumeric characters.
func looksSubstantive(answer string) bool {
	if answer == "" || answer == llmclient.InsufficientData {
		return false
	}
	lower := strings.ToLower(answer)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	alnum := 0
	for _, r := range answer {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			alnum++
		}
	}
	return float64(alnum)/float64(len([]rune(answer))) >= 0.4
}

// Phase 1 — local hybrid retrieval

func (a *Answerer) retrieve(ctx context.Context, query, entityScope string) ([]hit, error) {
	vecHits, err := a.retrieveVector(ctx, query, entityScope)
	if err != nil {
		return nil, err
	}
	sqlHits := a.retrieveKeyword(ctx, query)
	// Vector hits are prioritized ahead of keyword hits (spec §4.12 Phase 1).
	return append(vecHits, sqlHits...), nil
}

func (a *Answerer) retrieveVector(ctx context.Context, query, entityScope string) ([]hit, error) {
	vec, err := a.LLM.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	raw, err := a.Vectors.Search(ctx, vec, topKVector*3, store.VectorFilter{Entity: entityScope})
	if err != nil {
		return nil, err
	}
	out := make([]hit, 0, topKVector)
	for _, v := range raw {
		if v.Payload.Kind == store.KindPageRaw || v.Payload.Text == "" {
			continue
		}
		out = append(out, hit{
			url: v.Payload.URL, text: v.Payload.Text, source: "rag", score: v.Score,
			kind: v.Payload.Kind, chunkIndex: v.Payload.ChunkIndex, vector: v.Vector,
		})
		if len(out) >= topKVector {
			break
		}
	}
	return out, nil
}

func (a *Answerer) retrieveKeyword(ctx context.Context, query string) []hit {
	intel, err := a.Intel.SearchByText(ctx, query, topKKeyword)
	if err != nil {
		a.logWarn("phase 1 keyword search failed", "err", err)
		return nil
	}
	out := make([]hit, 0, len(intel))
	for _, i := range intel {
		url := ""
		if a.Pages != nil {
			if page, _, err := a.Pages.GetByID(ctx, i.PageID); err == nil && page != nil {
				url = page.URL
			}
		}
		out = append(out, hit{
			url: url, text: summarizeIntel(i), source: "sql", score: float64(i.Confidence) / 100,
		})
	}
	return out
}

// Phase 2 — thin-snippet expansion

// expand grows each page_sentence hit's text by pulling neighbouring
// sentence chunks from the same page, in expanding windows, until the
// combined text reaches minExpandedRunes or no more neighbours exist
// (spec §4.12 Phase 2).
func (a *Answerer) expand(ctx context.Context, hits []hit) []hit {
	out := make([]hit, len(hits))
	copy(out, hits)
	for i := range out {
		if out[i].kind != store.KindPageSentence || out[i].url == "" {
			continue
		}
		out[i].text = a.expandOne(ctx, out[i])
	}
	return out
}

func (a *Answerer) expandOne(ctx context.Context, h hit) string {
	if len(h.text) >= minExpandedRunes {
		return h.text
	}
	neighbors, err := a.Vectors.Search(ctx, h.vector, sentenceNeighborFetchLimit, store.VectorFilter{Kind: store.KindPageSentence, URL: h.url})
	if err != nil || len(neighbors) == 0 {
		return h.text
	}
	byIndex := make(map[int]string, len(neighbors))
	for _, n := range neighbors {
		byIndex[n.Payload.ChunkIndex] = n.Payload.Text
	}

	window := 1
	combined := h.text
	for round := 0; round < maxExpansionRounds && len(combined) < minExpandedRunes; round++ {
		var indices []int
		for idx := h.chunkIndex - window; idx <= h.chunkIndex+window; idx++ {
			if _, ok := byIndex[idx]; ok {
				indices = append(indices, idx)
			}
		}
		if len(indices) == 0 {
			break
		}
		sort.Ints(indices)
		var sb strings.Builder
		for _, idx := range indices {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(byIndex[idx])
		}
		if sb.Len() <= len(combined) {
			break // no new neighbours picked up this round
		}
		combined = sb.String()
		window *= 2
	}
	return combined
}

// Phase 3 — retry with paraphrasing

func (a *Answerer) retryWithParaphrases(ctx context.Context, question, entityScope string, hits []hit) ([]hit, []string) {
	paraphrases, err := a.LLM.ParaphraseQuery(ctx, question)
	if err != nil || len(paraphrases) == 0 {
		paraphrases = nil
	}

	all := append([]hit{}, hits...)
	for _, p := range paraphrases {
		more, err := a.retrieve(ctx, p, entityScope)
		if err != nil {
			a.logWarn("phase 3 retry query failed", "query", p, "err", err)
			continue
		}
		all = append(all, more...)
	}
	deduped := dedupeByURLKeepingBest(all)
	return a.expand(ctx, deduped), paraphrases
}

// dedupeByURLKeepingBest collapses hits sharing a URL down to the
// highest-scoring version (spec §4.12 Phase 3), leaving hits with no
// URL (malformed keyword hits) untouched.
func dedupeByURLKeepingBest(hits []hit) []hit {
	best := map[string]hit{}
	var noURL []hit
	var order []string
	for _, h := range hits {
		if h.url == "" {
			noURL = append(noURL, h)
			continue
		}
		if existing, ok := best[h.url]; !ok || h.score > existing.score {
			if !ok {
				order = append(order, h.url)
			}
			best[h.url] = h
		}
	}
	out := make([]hit, 0, len(order)+len(noURL))
	for _, url := range order {
		out = append(out, best[url])
	}
	return append(out, noURL...)
}

func countHighQuality(hits []hit) int {
	n := 0
	for _, h := range hits {
		if h.source == "rag" && h.score >= highQualitySimilarity {
			n++
		}
	}
	return n
}

// Phase 4 — live crawl

// crawlLive generates seed queries, resolves them to candidate URLs via
// the configured SERP adapter, and runs a small bounded Explorer
// session over the top-ranked candidates (spec §4.12 Phase 4).
func (a *Answerer) crawlLive(ctx context.Context, question, entityScope string) error {
	seedQueries, err := a.LLM.GenerateSeedQueries(ctx, question, entityScope)
	if err != nil {
		return fmt.Errorf("generate seed queries: %w", err)
	}

	seen := map[string]llmclient.SearchResultCandidate{}
	for _, q := range seedQueries {
		results, err := a.SERP.Search(ctx, q, serpCandidateLimit)
		if err != nil {
			a.logWarn("SERP search failed", "query", q, "err", err)
			continue
		}
		for _, r := range results {
			seen[r.URL] = llmclient.SearchResultCandidate{URL: r.URL, Title: r.Title, Snippet: r.Snippet}
		}
	}
	if len(seen) == 0 {
		return fmt.Errorf("no SERP candidates for any seed query")
	}

	candidates := make([]llmclient.SearchResultCandidate, 0, len(seen))
	for _, c := range seen {
		candidates = append(candidates, c)
	}

	profile := urlscore.Profile{Name: entityScope}
	ranked, err := a.LLM.RankSearchResults(ctx, profile, candidates)
	if err != nil {
		a.logWarn("rank search results failed, using unranked candidates", "err", err)
	}
	urls := pickTopURLs(ranked, candidates, crawlMaxPages)
	if len(urls) == 0 {
		return fmt.Errorf("no candidate URLs survived ranking")
	}

	cfg := explorer.Config{
		MaxPagesPerDomain: crawlMaxPages,
		MaxTotalPages:     crawlMaxPages,
		MaxDepth:          1,
		ScoreThreshold:    crawlScoreThreshold,
	}
	_, err = a.Explorer.Explore(ctx, profile, urls, cfg)
	return err
}

// pickTopURLs returns up to n URLs, preferring the model's ranking
// (restricted to URLs that were actually offered as candidates, guarding
// against a hallucinated URL) and falling back to candidate order when
// ranking failed or returned nothing.
func pickTopURLs(ranked []llmclient.RankedSearchResult, candidates []llmclient.SearchResultCandidate, n int) []string {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.URL] = true
	}

	if len(ranked) > 0 {
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].LLMScore > ranked[j].LLMScore })
		urls := make([]string, 0, n)
		for _, r := range ranked {
			if !known[r.URL] {
				continue
			}
			urls = append(urls, r.URL)
			if len(urls) >= n {
				return urls
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}

	urls := make([]string, 0, n)
	for _, c := range candidates {
		urls = append(urls, c.URL)
		if len(urls) >= n {
			break
		}
	}
	return urls
}

func toContextSnippets(hits []hit) []llmclient.ContextSnippet {
	out := make([]llmclient.ContextSnippet, 0, len(hits))
	for _, h := range hits {
		out = append(out, llmclient.ContextSnippet{Text: h.text, Source: h.url})
	}
	return out
}

func toSnippets(hits []hit) []Snippet {
	out := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		out = append(out, Snippet{URL: h.url, Text: h.text, Source: h.source, Score: h.score})
	}
	return out
}

// summarizeIntel renders an Intelligence row's structured payload as
// flat text for LLM context. A plain json.Marshal is used rather than
// gjson/sjson (used elsewhere in this module for path-based JSON
// reads/writes): this is a whole-document serialization, not a path
// query, so the path-oriented libraries don't apply here.
func summarizeIntel(intel store.Intelligence) string {
	raw, err := json.Marshal(intel.Payload)
	if err != nil {
		return ""
	}
	text := string(raw)
	const maxRunes = 800
	if len([]rune(text)) > maxRunes {
		runes := []rune(text)
		text = string(runes[:maxRunes])
	}
	return text
}

func (a *Answerer) logWarn(msg string, args ...any) {
	if a.Log == nil {
		return
	}
	a.Log.Warn(msg, args...)
}
