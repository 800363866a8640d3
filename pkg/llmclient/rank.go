package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/webintel/webintel/pkg/urlscore"
)

// LinkCandidate is one outlink offered to rank_links, alongside the
// minimal context the model needs to judge its relevance.
type LinkCandidate struct {
	URL        string
	AnchorText string
}

// RankedLink is a LinkCandidate scored by the model (spec §4.4
// rank_links, §4.7 step covering llm_score blending into the URL
// Scorer's output).
type RankedLink struct {
	URL      string
	LLMScore int
}

const rankLinksPrompt = `You are ranking outbound links found on a web page by how likely each
is to lead to useful intelligence about a target entity. Given the entity profile, a short
description of the current page, and a numbered list of candidate links (URL and anchor
text), respond with ONLY a JSON array of objects: [{"url": "...", "llm_score": 0-100}, ...],
one entry per candidate, in any order. Score strictly on topical relevance to the entity,
not on generic link quality.`

type rankedLinkReply struct {
	URL      string `json:"url"`
	LLMScore int    `json:"llm_score"`
}

// RankLinks scores each candidate link's relevance to profile given
// pageContext (spec §4.4 rank_links). A malformed reply yields an empty
// slice, not an error, so callers fall back to the URL Scorer's
// heuristic score alone.
func (c *Client) RankLinks(ctx context.Context, profile urlscore.Profile, pageContext string, candidates []LinkCandidate) ([]RankedLink, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "%d. url=%s anchor=%q\n", i+1, cand.URL, cand.AnchorText)
	}
	userMessage := fmt.Sprintf(
		"Entity: %s (kind: %s)\nCurrent page context: %s\n\nCandidate links:\n%s",
		profile.Name, profile.Kind, pageContext, sb.String(),
	)

	reply, err := c.complete(ctx, rankLinksPrompt, userMessage, 0.1)
	if err != nil {
		return nil, fmt.Errorf("llmclient: rank_links: %w", err)
	}

	var parsed []rankedLinkReply
	if err := json.Unmarshal([]byte(stripMarkdown(reply)), &parsed); err != nil {
		return nil, nil
	}

	out := make([]RankedLink, 0, len(parsed))
	for _, p := range parsed {
		score := p.LLMScore
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		out = append(out, RankedLink{URL: p.URL, LLMScore: score})
	}
	return out, nil
}

const seedQueriesPrompt = `Given a user question and a target entity name, generate exactly 3
distinct search-engine queries likely to surface web pages answering the question about that
entity. Respond with ONLY a JSON array of 3 strings.`

// GenerateSeedQueries produces 3 paraphrased search queries for question
// about entity (spec §4.4 generate_seed_queries). A malformed reply
// degrades to a single-element slice containing the original question.
func (c *Client) GenerateSeedQueries(ctx context.Context, question, entity string) ([]string, error) {
	userMessage := fmt.Sprintf("Question: %s\nEntity: %s", question, entity)
	reply, err := c.complete(ctx, seedQueriesPrompt, userMessage, 0.5)
	if err != nil {
		return nil, fmt.Errorf("llmclient: generate_seed_queries: %w", err)
	}
	queries := parseStringArray(reply)
	if len(queries) == 0 {
		return []string{question}, nil
	}
	return queries, nil
}

// SearchResultCandidate is one raw SERP hit offered to rank_search_results.
type SearchResultCandidate struct {
	URL     string
	Title   string
	Snippet string
}

// RankedSearchResult is a SearchResultCandidate annotated with the
// model's relevance judgement and whether it looks like the entity's
// own official site (spec §4.4 rank_search_results).
type RankedSearchResult struct {
	URL        string
	LLMScore   int
	IsOfficial bool
}

const rankSearchResultsPrompt = `You are ranking search-engine results for how likely each is to
be a page about, or the official site of, a target entity. Given the entity profile and a
numbered list of results (URL, title, snippet), respond with ONLY a JSON array:
[{"url": "...", "llm_score": 0-100, "is_official": bool}, ...], one entry per result.`

type rankedSearchResultReply struct {
	URL        string `json:"url"`
	LLMScore   int    `json:"llm_score"`
	IsOfficial bool   `json:"is_official"`
}

// RankSearchResults scores and flags official-site candidates among SERP
// results for profile (spec §4.4 rank_search_results).
func (c *Client) RankSearchResults(ctx context.Context, profile urlscore.Profile, candidates []SearchResultCandidate) ([]RankedSearchResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "%d. url=%s title=%q snippet=%q\n", i+1, cand.URL, cand.Title, cand.Snippet)
	}
	userMessage := fmt.Sprintf("Entity: %s (kind: %s)\n\nResults:\n%s", profile.Name, profile.Kind, sb.String())

	reply, err := c.complete(ctx, rankSearchResultsPrompt, userMessage, 0.1)
	if err != nil {
		return nil, fmt.Errorf("llmclient: rank_search_results: %w", err)
	}

	var parsed []rankedSearchResultReply
	if err := json.Unmarshal([]byte(stripMarkdown(reply)), &parsed); err != nil {
		return nil, nil
	}

	out := make([]RankedSearchResult, 0, len(parsed))
	for _, p := range parsed {
		score := p.LLMScore
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		out = append(out, RankedSearchResult{URL: p.URL, LLMScore: score, IsOfficial: p.IsOfficial})
	}
	return out, nil
}

const paraphrasePrompt = `Generate 2-3 alternative phrasings of the given question that preserve
its meaning but vary wording, to widen search recall. Respond with ONLY a JSON array of strings.`

// ParaphraseQuery returns 2-3 alternative phrasings of question (spec
// §4.4 paraphrase_query, used by the RAG Answerer's retry phase).
func (c *Client) ParaphraseQuery(ctx context.Context, question string) ([]string, error) {
	reply, err := c.complete(ctx, paraphrasePrompt, question, 0.6)
	if err != nil {
		return nil, fmt.Errorf("llmclient: paraphrase_query: %w", err)
	}
	return parseStringArray(reply), nil
}

// parseStringArray decodes reply as a JSON array of strings, returning
// nil on any parse failure rather than an error.
func parseStringArray(reply string) []string {
	var out []string
	if err := json.Unmarshal([]byte(stripMarkdown(reply)), &out); err != nil {
		return nil
	}
	return out
}
