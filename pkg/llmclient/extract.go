package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/webintel/webintel/pkg/urlscore"
)

// Finding is one candidate fact-cluster produced by extract_intelligence,
// shaped to match pkg/store's Intelligence.Payload (spec §4.4, §4.6).
type Finding struct {
	PageURL  string
	PageType string
	Payload  map[string]any
}

const extractPrompt = `You are extracting structured intelligence about a specific entity
from one web page. Given the entity profile, the page text, its page type, and the
entity's previously known intelligence (for context, to avoid redundant extraction),
return ONLY a JSON object with some or all of these keys:
basic_info (object), persons (array), jobs (array), metrics (array), locations (array),
financials (array), products (array), events (array), relationships (array).
Omit any section with nothing new to report. Return {} if the page has no relevant
intelligence about this entity. Do not include any prose outside the JSON object.`

// ExtractIntelligence extracts a structured Finding about profile from
// text (spec §4.4 extract_intelligence). A malformed or empty model
// reply yields an empty (non-nil) Payload, not an error — per the contract,
// malformed output is a failed extraction, never fatal.
func (c *Client) ExtractIntelligence(ctx context.Context, profile urlscore.Profile, text, pageType, pageURL string, priorIntel map[string]any) (Finding, error) {
	prior, _ := json.Marshal(priorIntel)
	userMessage := fmt.Sprintf(
		"Entity: %s (kind: %s, aliases: %s)\nPage type: %s\nPage URL: %s\nPrior known intelligence: %s\n\nPage text:\n%s",
		profile.Name, profile.Kind, strings.Join(profile.Aliases, ", "), pageType, pageURL, prior, text,
	)

	reply, err := c.complete(ctx, extractPrompt, userMessage, 0.1)
	if err != nil {
		return Finding{}, fmt.Errorf("llmclient: extract_intelligence: %w", err)
	}

	cleaned := stripMarkdown(reply)
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		// The reply wasn't a clean top-level JSON object — likely stray prose
		// wrapped around the JSON. Salvage whatever known sections gjson can
		// still pick out by path rather than discarding the whole reply.
		raw = salvageIntelSections(cleaned)
	}

	return Finding{
		PageURL:  pageURL,
		PageType: pageType,
		Payload:  validateIntelPayload(raw),
	}, nil
}

// Verification is reflect_and_verify's output: whether a candidate
// Finding holds up against the page and profile, a confidence in
// [0,100], and a short reason (spec §4.4, §4.7 step h).
type Verification struct {
	Verified   bool
	Confidence int
	Reason     string
}

const reflectPrompt = `You are reviewing a candidate intelligence finding extracted about an
entity from a web page, checking it against the entity profile for plausibility and
internal consistency. Respond with ONLY a JSON object:
{"verified": bool, "confidence": integer 0-100, "reason": "short explanation"}.
Mark verified=false for hallucinated, contradictory, or off-entity findings.`

type reflectReply struct {
	Verified   bool   `json:"verified"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// ReflectAndVerify judges whether finding genuinely concerns profile
// (spec §4.4 reflect_and_verify). A malformed reply yields
// Verified=false with confidence 0, never an error — the caller's
// keep-if-verified-and-confidence≥70 rule then naturally discards it.
func (c *Client) ReflectAndVerify(ctx context.Context, profile urlscore.Profile, finding Finding) (Verification, error) {
	payload, _ := json.Marshal(finding.Payload)
	userMessage := fmt.Sprintf(
		"Entity: %s (kind: %s)\nCandidate finding from %s (page type: %s):\n%s",
		profile.Name, profile.Kind, finding.PageURL, finding.PageType, payload,
	)

	reply, err := c.complete(ctx, reflectPrompt, userMessage, 0.0)
	if err != nil {
		return Verification{}, fmt.Errorf("llmclient: reflect_and_verify: %w", err)
	}

	var parsed reflectReply
	if err := json.Unmarshal([]byte(stripMarkdown(reply)), &parsed); err != nil {
		return Verification{Verified: false, Confidence: 0, Reason: "unparseable verifier reply"}, nil
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return Verification{Verified: parsed.Verified, Confidence: confidence, Reason: parsed.Reason}, nil
}
