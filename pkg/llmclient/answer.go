package llmclient

import (
	"context"
	"fmt"
	"strings"
)

// InsufficientData is the literal sentinel synthesize_answer returns
// when the supplied context snippets don't support an answer (spec
// §4.4 synthesize_answer).
const InsufficientData = "INSUFFICIENT_DATA"

// ContextSnippet is one piece of retrieved context offered to
// synthesize_answer, alongside where it came from for citation.
type ContextSnippet struct {
	Text   string
	Source string
}

const synthesizePrompt = `Answer the user's question using ONLY the provided context snippets.
If the snippets do not contain enough information to answer confidently, respond with exactly
the text INSUFFICIENT_DATA and nothing else. Otherwise give a direct, concise answer grounded
in the snippets; do not speculate beyond them.`

// SynthesizeAnswer answers question from hits, or returns
// InsufficientData when the context doesn't support an answer (spec
// §4.4 synthesize_answer).
func (c *Client) SynthesizeAnswer(ctx context.Context, question string, hits []ContextSnippet) (string, error) {
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, h.Source, h.Text)
	}
	userMessage := fmt.Sprintf("Question: %s\n\nContext:\n%s", question, sb.String())

	reply, err := c.complete(ctx, synthesizePrompt, userMessage, 0.2)
	if err != nil {
		return "", fmt.Errorf("llmclient: synthesize_answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

const sufficiencyPrompt = `Judge whether the candidate answer below is a genuine, substantive
answer to a question, as opposed to a refusal, hedge, or an explicit admission that the
information is unavailable. Respond with ONLY the single word true or false.`

// EvaluateSufficiency judges whether answer is a genuine, substantive
// response rather than a refusal or hedge (spec §4.4
// evaluate_sufficiency). Combined by callers with a non-refusal string
// heuristic and the InsufficientData sentinel check (spec §4.12).
func (c *Client) EvaluateSufficiency(ctx context.Context, answer string) (bool, error) {
	if strings.TrimSpace(answer) == "" || answer == InsufficientData {
		return false, nil
	}

	reply, err := c.complete(ctx, sufficiencyPrompt, answer, 0.0)
	if err != nil {
		return false, fmt.Errorf("llmclient: evaluate_sufficiency: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(reply), "true"), nil
}
