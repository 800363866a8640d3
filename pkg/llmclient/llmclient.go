// Package llmclient collects every model-dependent operation behind one
// contract (spec §4.4): embedding, summarization, structured extraction,
// verification, link/result ranking, query generation/paraphrasing, and
// answer synthesis. Every operation that parses a model reply is
// tolerant of non-JSON output — a malformed reply degrades to a failed
// op, never a fatal error, mirroring the teacher's transcript-correction
// idiom (system prompt → Complete → markdown-fence strip →
// json.Unmarshal → graceful fallback on parse failure).
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/webintel/webintel/pkg/provider/embeddings"
	"github.com/webintel/webintel/pkg/provider/llm"
	"github.com/webintel/webintel/pkg/types"
)

// defaultChunkRunes bounds the input size of a single summarize_page
// call before hierarchical chunk-and-merge kicks in.
const defaultChunkRunes = 6000

// Client collects the LLM Client operations of spec §4.4 atop an
// llm.Provider and an embeddings.Provider.
//
// Safe for concurrent use; both underlying providers must be.
type Client struct {
	llm        llm.Provider
	embeddings embeddings.Provider
	chunkRunes int
}

// Option configures a Client.
type Option func(*Client)

// WithChunkSize overrides the hierarchical-summarization chunk size (in
// runes). Default 6000.
func WithChunkSize(runes int) Option {
	return func(c *Client) { c.chunkRunes = runes }
}

// New returns a Client backed by the given providers.
func New(llmProvider llm.Provider, embedProvider embeddings.Provider, opts ...Option) *Client {
	c := &Client{llm: llmProvider, embeddings: embedProvider, chunkRunes: defaultChunkRunes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed computes a dense vector for text (spec §4.4 embed).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embeddings.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("llmclient: embed: %w", err)
	}
	return vec, nil
}

// complete is the shared low-level call: system prompt + single user
// message, returning the raw reply content.
func (c *Client) complete(ctx context.Context, systemPrompt, userMessage string, temperature float64) (string, error) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  temperature,
		Messages:     []types.Message{{Role: "user", Content: userMessage}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

const summarizePrompt = `Summarize the following web page text in 3-5 sentences.
Preserve concrete facts: names, numbers, dates, and relationships. Omit navigation
boilerplate and marketing language. Respond with ONLY the summary text, no preamble.`

// SummarizePage produces a 3-5 sentence summary of text (spec §4.4
// summarize_page). Input exceeding the configured chunk size is split,
// summarized in parallel (safe because summarize is pure), then
// summarized again over the concatenation of chunk summaries
// (hierarchical summarization).
func (c *Client) SummarizePage(ctx context.Context, text string) (string, error) {
	chunks := chunkText(text, c.chunkRunes)
	if len(chunks) <= 1 {
		return c.complete(ctx, summarizePrompt, text, 0.3)
	}

	summaries := make([]string, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		group.Go(func() error {
			summary, err := c.complete(groupCtx, summarizePrompt, chunk, 0.3)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", fmt.Errorf("llmclient: summarize_page: %w", err)
	}

	return c.complete(ctx, summarizePrompt, strings.Join(summaries, "\n\n"), 0.3)
}

// chunkText splits text into runs of at most maxRunes runes, on rune
// boundaries.
func chunkText(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); start += maxRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// stripMarkdown removes optional markdown code fences models sometimes
// wrap JSON output in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
