// Package explorer implements the Intelligent Explorer, the crawl
// orchestrator that drives the Frontier, Fetcher, Content Extractor, LLM
// Client, Entity Merger, and dual store through one targeted-crawl loop
// per entity profile (spec §4.7).
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/webintel/webintel/internal/merger"
	"github.com/webintel/webintel/internal/observe"
	"github.com/webintel/webintel/pkg/extractor"
	"github.com/webintel/webintel/pkg/fetcher"
	"github.com/webintel/webintel/pkg/frontier"
	"github.com/webintel/webintel/pkg/llmclient"
	"github.com/webintel/webintel/pkg/store"
	"github.com/webintel/webintel/pkg/urlscore"
)

// nearDuplicateThreshold is the semantic near-duplicate gate of spec
// §4.7 step g: a page whose full-text embedding matches an
// already-seen page_raw vector above this similarity is skipped
// entirely rather than re-extracted.
const nearDuplicateThreshold = 0.96

// verifiedConfidenceFloor is the minimum reflect_and_verify confidence
// (spec §4.7 step h) a finding must clear, alongside verified=true, to
// be persisted.
const verifiedConfidenceFloor = 70

// domainBoostAmount is applied to a domain's learned prior once a page
// from it yields a high-confidence finding (spec §4.7 step j).
const domainBoostAmount = 25.0

// priorContextChunkRunes bounds how much of a page's text is embedded
// for the prior-context retrieval of spec §4.7 step f.
const priorContextChunkRunes = 1000

// Config bounds one Explore run (spec §4.7 Inputs).
type Config struct {
	MaxPagesPerDomain int
	MaxTotalPages     int
	MaxDepth          int
	ScoreThreshold    int
	UseLLMLinkRank    bool
	LLMLinkRankCap    int
}

// DefaultConfig returns reasonable exploration bounds.
func DefaultConfig() Config {
	return Config{
		MaxPagesPerDomain: 25,
		MaxTotalPages:     200,
		MaxDepth:          4,
		ScoreThreshold:    50,
		UseLLMLinkRank:    true,
		LLMLinkRankCap:    15,
	}
}

// Explorer runs the targeted crawl loop of spec §4.7.
type Explorer struct {
	Fetcher fetcher.Fetcher
	LLM     *llmclient.Client
	Pages   store.PageStore
	Intel   store.IntelStore
	Graph   store.EntityGraph
	Links   store.LinkStore
	Vectors store.VectorIndex
	Priors  *urlscore.PriorStore
	Log     *slog.Logger

	// Metrics records crawl latency/throughput. Nil disables instrumentation.
	Metrics *observe.Metrics
}

// Result is one explored page's outcome, keyed by the original URL in
// the map Explore returns.
type Result struct {
	Page     store.Page
	Findings int
}

// Explore runs the main loop of spec §4.7: seed the Frontier from
// seedURLs, then pop/guard/fetch/extract/verify/persist/enqueue until
// cfg's bounds are exhausted or the Frontier empties. Cancellation via
// ctx is checked between iterations (cooperative, per spec §5).
func (e *Explorer) Explore(ctx context.Context, profile urlscore.Profile, seedURLs []string, cfg Config) (map[string]Result, error) {
	if e.Metrics != nil {
		e.Metrics.ActiveExplorations.Add(ctx, 1)
		defer e.Metrics.ActiveExplorations.Add(ctx, -1)
	}

	f := frontier.New()
	for _, seed := range seedURLs {
		result := urlscore.Score(seed, "", 0, profile, e.Priors)
		f.Push(result.Score, 0, seed, "")
	}

	visited := map[string]bool{}
	domainCounts := map[string]int{}
	explored := map[string]Result{}

	for len(explored) < cfg.MaxTotalPages && f.Len() > 0 {
		select {
		case <-ctx.Done():
			return explored, ctx.Err()
		default:
		}

		item, ok := f.Pop()
		if !ok {
			break
		}

		normalized := normalizeURL(item.URL)
		if visited[normalized] {
			continue
		}
		domain := urlscore.RegistrableDomain(hostOf(item.URL))
		if item.Depth > cfg.MaxDepth || domainCounts[domain] >= cfg.MaxPagesPerDomain {
			continue
		}
		visited[normalized] = true
		domainCounts[domain]++

		page, findingCount, err := e.explorePage(ctx, profile, item, cfg, f)
		if err != nil {
			e.logWarn("explore page failed", "url", item.URL, "err", err)
			continue
		}
		if page != nil {
			explored[item.URL] = Result{Page: *page, Findings: findingCount}
		}
	}

	return explored, nil
}

// explorePage runs steps (d) through (k) of the main loop for a single
// popped Frontier item. A nil *store.Page with a nil error means the
// page was skipped (near-duplicate or fetch failure) without being an
// error worth aborting the whole crawl over.
func (e *Explorer) explorePage(ctx context.Context, profile urlscore.Profile, item frontier.Item, cfg Config, f *frontier.Frontier) (*store.Page, int, error) {
	fetchStart := time.Now()
	fetchResult, err := e.Fetcher.Fetch(ctx, item.URL)
	if e.Metrics != nil {
		e.Metrics.CrawlFetchDuration.Record(ctx, time.Since(fetchStart).Seconds())
	}
	if err != nil {
		// Failure semantics (spec §4.7): a fetch failure yields empty
		// HTML and the loop continues; it is not a fatal error.
		e.logWarn("fetch failed", "url", item.URL, "err", err)
		return nil, 0, nil
	}
	if e.Metrics != nil {
		e.Metrics.PagesCrawled.Add(ctx, 1, metric.WithAttributes(observe.Attr("domain", urlscore.RegistrableDomain(hostOf(fetchResult.FinalURL)))))
	}

	extracted, err := extractor.Extract(fetchResult.RawHTML, fetchResult.FinalURL)
	if err != nil {
		return nil, 0, nil
	}

	pageID := store.PageID(fetchResult.FinalURL)
	domain := urlscore.RegistrableDomain(hostOf(fetchResult.FinalURL))
	now := time.Now()

	// Step f: prior-context retrieval.
	priorContext := e.priorContext(ctx, profile, extracted.CleanText)

	// Step g: semantic near-duplicate gate.
	if e.Vectors != nil && extracted.CleanText != "" {
		fullVec, embedErr := e.LLM.Embed(ctx, extracted.CleanText)
		if embedErr == nil {
			hits, searchErr := e.Vectors.Search(ctx, fullVec, 1, store.VectorFilter{Kind: store.KindPageRaw})
			if searchErr == nil && len(hits) > 0 && hits[0].Score > nearDuplicateThreshold {
				return nil, 0, nil
			}
			rawVecID := store.VectorID(fetchResult.FinalURL, store.KindPageRaw, 0)
			_ = e.Vectors.Upsert(ctx, rawVecID, fullVec, store.VectorPayload{
				Kind: store.KindPageRaw, URL: fetchResult.FinalURL, SQLPageID: pageID,
			})
		}
	}

	// Step h: extraction + verification.
	findingCount := 0
	highConfidence := false
	finding, err := e.LLM.ExtractIntelligence(ctx, profile, extracted.CleanText, extracted.PageType, fetchResult.FinalURL, priorContext)
	if err != nil {
		e.logWarn("extract_intelligence failed", "url", fetchResult.FinalURL, "err", err)
	} else if len(finding.Payload) > 0 {
		verification, verifyErr := e.LLM.ReflectAndVerify(ctx, profile, finding)
		if verifyErr != nil {
			e.logWarn("reflect_and_verify failed", "url", fetchResult.FinalURL, "err", verifyErr)
		} else if verification.Verified && verification.Confidence >= verifiedConfidenceFloor {
			entityID, _, err := merger.GetOrCreate(ctx, e.Graph, profile.Name, profile.Kind, nil)
			if err != nil {
				e.logWarn("get_or_create primary entity failed", "url", fetchResult.FinalURL, "err", err)
			} else {
				intel := store.Intelligence{
					ID:        store.NewID(),
					PageID:    pageID,
					EntityID:  entityID,
					Confidence: verification.Confidence,
					Payload:   finding.Payload,
					CreatedAt: now,
				}
				if err := e.Intel.Save(ctx, intel); err != nil {
					e.logWarn("save intel failed", "url", fetchResult.FinalURL, "err", err)
				} else {
					findingCount++
					if verification.Confidence >= verifiedConfidenceFloor {
						highConfidence = true
					}
					e.persistFindingVectors(ctx, profile, fetchResult.FinalURL, intel)
					e.upsertDerivedEntities(ctx, finding.Payload)
				}
			}
		}
	}

	// Step i: save Page + PageContent, and per-page semantic views.
	page := store.Page{
		ID:              pageID,
		URL:             fetchResult.FinalURL,
		DomainKey:       domain,
		Depth:           item.Depth,
		PriorityScore:   float64(item.Score),
		PageType:        extracted.PageType,
		LastFetchStatus: "ok",
		LastFetchedAt:   now,
		TextLength:      len([]rune(extracted.CleanText)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	content := store.PageContent{
		ID:         pageID,
		RawHTML:    fetchResult.RawHTML,
		CleanText:  extracted.CleanText,
		Metadata:   extracted.Metadata,
		Extraction: finding.Payload,
	}
	if err := e.Pages.SavePage(ctx, page, content); err != nil {
		return nil, findingCount, fmt.Errorf("save page: %w", err)
	}
	e.persistPageVectors(ctx, page, content)

	// Step j: reward the domain on a high-confidence finding.
	if highConfidence && e.Priors != nil {
		e.Priors.BoostDomain(domain, domainBoostAmount)
	}

	// Step k: enqueue outlinks.
	e.enqueueOutlinks(ctx, profile, fetchResult, item, extracted, cfg, f)

	return &page, findingCount, nil
}

// priorContext runs step f: embed a text prefix and semantic-search for
// existing findings about the same entity, so the extractor doesn't
// repeat known facts. Returns nil (not an error) on any failure — prior
// context is an optimization, not a correctness requirement.
func (e *Explorer) priorContext(ctx context.Context, profile urlscore.Profile, text string) map[string]any {
	if e.Vectors == nil || text == "" {
		return nil
	}
	prefix := text
	if runes := []rune(text); len(runes) > priorContextChunkRunes {
		prefix = string(runes[:priorContextChunkRunes])
	}
	vec, err := e.LLM.Embed(ctx, prefix)
	if err != nil {
		return nil
	}
	hits, err := e.Vectors.Search(ctx, vec, 3, store.VectorFilter{Kind: store.KindFinding, Entity: profile.Name})
	if err != nil || len(hits) == 0 {
		return nil
	}
	merged := map[string]any{}
	for i, hit := range hits {
		merged[fmt.Sprintf("prior_%d", i)] = hit.Payload.Text
	}
	return merged
}

// persistPageVectors stores the per-page title/description/summary/url
// views of the per-page embedding strategy (spec §4.5).
func (e *Explorer) persistPageVectors(ctx context.Context, page store.Page, content store.PageContent) {
	if e.Vectors == nil {
		return
	}
	views := map[string]string{
		"title":       content.Metadata["title"],
		"description": content.Metadata["description"],
		"url":         page.URL,
	}
	for label, text := range views {
		if text == "" {
			continue
		}
		vec, err := e.LLM.Embed(ctx, text)
		if err != nil {
			continue
		}
		id := store.VectorID(page.URL, store.KindPage, ordinalFor(label))
		_ = e.Vectors.Upsert(ctx, id, vec, store.VectorPayload{
			Kind: store.KindPage, URL: page.URL, SQLPageID: page.ID, Text: text,
		})
	}
	e.persistSentenceVectors(ctx, page, content)
}

// maxSentenceChunks bounds how many per-sentence embeddings are
// persisted per page, keeping crawl throughput bounded on very long
// pages while still giving the RAG Answerer's thin-snippet expansion
// (spec §4.12 Phase 2) a useful neighbourhood to walk.
const maxSentenceChunks = 40

// persistSentenceVectors embeds the page's clean text one sentence at a
// time, so the RAG Answerer can later fetch neighbouring sentences
// around a matched chunk by (URL, ChunkIndex) proximity.
func (e *Explorer) persistSentenceVectors(ctx context.Context, page store.Page, content store.PageContent) {
	sentences := splitSentences(content.CleanText)
	if len(sentences) > maxSentenceChunks {
		sentences = sentences[:maxSentenceChunks]
	}
	for i, sentence := range sentences {
		vec, err := e.LLM.Embed(ctx, sentence)
		if err != nil {
			continue
		}
		id := store.VectorID(page.URL, store.KindPageSentence, i)
		_ = e.Vectors.Upsert(ctx, id, vec, store.VectorPayload{
			Kind: store.KindPageSentence, URL: page.URL, SQLPageID: page.ID,
			ChunkIndex: i, Text: sentence,
		})
	}
}

// splitSentences breaks text on sentence-ending punctuation, discarding
// fragments too short to carry standalone meaning.
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) >= 20 {
			out = append(out, s)
		}
	}
	return out
}

func ordinalFor(label string) int {
	switch label {
	case "title":
		return 0
	case "description":
		return 1
	case "url":
		return 2
	default:
		return 3
	}
}

// persistFindingVectors stores one embedding for the verified
// Intelligence row, cross-referenced back to it and its source page.
func (e *Explorer) persistFindingVectors(ctx context.Context, profile urlscore.Profile, pageURL string, intel store.Intelligence) {
	if e.Vectors == nil {
		return
	}
	text := summarizePayloadForEmbedding(intel.Payload)
	if text == "" {
		return
	}
	vec, err := e.LLM.Embed(ctx, text)
	if err != nil {
		return
	}
	id := store.VectorID(pageURL, store.KindFinding, 0)
	_ = e.Vectors.Upsert(ctx, id, vec, store.VectorPayload{
		Kind: store.KindFinding, URL: pageURL, Entity: profile.Name, SQLPageID: intel.PageID,
		SQLIntelID: intel.ID, SQLEntityID: intel.EntityID, Text: text,
	})
}

// upsertDerivedEntities resolves persons/locations/products/events
// sub-entities named in a verified finding's payload into the
// EntityGraph via the Entity Merger (spec §4.7 step i, §4.9).
func (e *Explorer) upsertDerivedEntities(ctx context.Context, payload map[string]any) {
	for _, section := range []string{"persons", "locations", "products", "events"} {
		items, ok := payload[section].([]any)
		if !ok {
			continue
		}
		kind := strings.TrimSuffix(section, "s")
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := obj["name"].(string)
			if name == "" {
				continue
			}
			if _, _, err := merger.GetOrCreate(ctx, e.Graph, name, kind, obj); err != nil {
				e.logWarn("get_or_create derived entity failed", "name", name, "err", err)
			}
		}
	}
}

// enqueueOutlinks runs step k: optionally rank discovered outlinks with
// the LLM, blend with the heuristic Scorer, and push qualifying links
// at depth+1.
func (e *Explorer) enqueueOutlinks(ctx context.Context, profile urlscore.Profile, fetchResult fetcher.Result, item frontier.Item, extracted extractor.Result, cfg Config, f *frontier.Frontier) {
	if item.Depth >= cfg.MaxDepth || len(fetchResult.Outlinks) == 0 {
		return
	}

	resolved := resolveOutlinks(fetchResult.FinalURL, fetchResult.Outlinks)

	llmScores := map[string]int{}
	if cfg.UseLLMLinkRank && e.LLM != nil {
		ranked, err := e.rankTopLinks(ctx, profile, extracted, resolved, cfg.LLMLinkRankCap)
		if err != nil {
			e.logWarn("rank_links failed", "url", fetchResult.FinalURL, "err", err)
		}
		for _, r := range ranked {
			llmScores[r.URL] = r.LLMScore
		}
	}

	links := make([]store.Link, 0, len(resolved))
	for _, out := range resolved {
		heuristic := urlscore.Score(out.URL, out.AnchorText, item.Depth+1, profile, e.Priors)
		best := heuristic.Score
		if llmScore, ok := llmScores[out.URL]; ok && llmScore > best {
			best = llmScore
		}
		links = append(links, store.Link{
			FromPageID: store.PageID(fetchResult.FinalURL), ToURL: out.URL,
			AnchorText: out.AnchorText, ScoreReason: heuristic.Reason, Depth: item.Depth + 1,
		})
		if urlscore.ShouldExplore(urlscore.Result{Score: best}, cfg.ScoreThreshold) {
			f.Push(best, item.Depth+1, out.URL, out.AnchorText)
		}
	}
	if e.Links != nil && len(links) > 0 {
		_ = e.Links.SaveBatch(ctx, links, e.Graph)
	}
}

func (e *Explorer) rankTopLinks(ctx context.Context, profile urlscore.Profile, extracted extractor.Result, outlinks []fetcher.Outlink, limit int) ([]llmclient.RankedLink, error) {
	if limit <= 0 || limit > len(outlinks) {
		limit = len(outlinks)
	}
	candidates := make([]llmclient.LinkCandidate, 0, limit)
	for _, out := range outlinks[:limit] {
		candidates = append(candidates, llmclient.LinkCandidate{URL: out.URL, AnchorText: out.AnchorText})
	}
	pageContext := extracted.PageType
	return e.LLM.RankLinks(ctx, profile, pageContext, candidates)
}

// resolveOutlinks resolves each outlink's possibly-relative href against
// baseURL, dropping any that fail to parse or resolve to a non-http(s)
// scheme.
func resolveOutlinks(baseURL string, outlinks []fetcher.Outlink) []fetcher.Outlink {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	resolved := make([]fetcher.Outlink, 0, len(outlinks))
	for _, out := range outlinks {
		ref, err := url.Parse(out.URL)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		resolved = append(resolved, fetcher.Outlink{URL: abs.String(), AnchorText: out.AnchorText})
	}
	return resolved
}

// normalizeURL strips fragment and query, and any trailing slash, for
// visited-tracking purposes only (spec §4.7). The original URL is still
// used for fetch and storage.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.Fragment = ""
	parsed.RawQuery = ""
	normalized := parsed.Scheme + "://" + parsed.Host + strings.TrimSuffix(parsed.Path, "/")
	return normalized
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// summarizePayloadForEmbedding renders a finding's structured payload as
// flat text suitable for embedding, so a later semantic search actually
// matches on content rather than merely on which schema sections were
// populated.
func summarizePayloadForEmbedding(payload map[string]any) string {
	var sections []string
	for section := range payload {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	var sb strings.Builder
	for _, section := range sections {
		raw, err := json.Marshal(payload[section])
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s: %s", section, raw)
	}
	return sb.String()
}

func (e *Explorer) logWarn(msg string, args ...any) {
	if e.Log == nil {
		return
	}
	e.Log.Warn(msg, args...)
}
