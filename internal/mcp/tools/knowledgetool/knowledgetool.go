// Package knowledgetool provides built-in MCP tools that expose the
// relational store's entity graph and intelligence log to callers of the
// MCP host that internal/app registers them on.
//
// Three tools are exported via [NewTools]:
//   - "find_entities"   — look up entities in the graph by name and/or kind.
//   - "get_relationships" — list the relationship edges touching an entity.
//   - "search_intel"    — full-text search over persisted Intelligence rows.
//
// All handlers are safe for concurrent use.
package knowledgetool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/webintel/webintel/internal/mcp/tools"
	"github.com/webintel/webintel/pkg/provider/llm"
	"github.com/webintel/webintel/pkg/store"
)

// ─────────────────────────────────────────────────────────────────────────────
// find_entities
// ─────────────────────────────────────────────────────────────────────────────

// findEntitiesArgs is the JSON-decoded input for the "find_entities" tool.
type findEntitiesArgs struct {
	// Name restricts results to entities whose name contains this substring
	// (case-insensitive). Leave empty to match all names.
	Name string `json:"name,omitempty"`

	// Kind restricts results to entities of this kind (e.g. "person", "company").
	// Leave empty to match all kinds.
	Kind string `json:"kind,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// get_relationships
// ─────────────────────────────────────────────────────────────────────────────

// getRelationshipsArgs is the JSON-decoded input for the "get_relationships" tool.
type getRelationshipsArgs struct {
	// EntityID is the unique graph ID of the entity to look up.
	EntityID string `json:"entity_id"`

	// IncludeIncoming also returns relationships where EntityID is the target.
	// By default only outgoing relationships are returned.
	IncludeIncoming bool `json:"include_incoming,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// search_intel
// ─────────────────────────────────────────────────────────────────────────────

// searchIntelArgs is the JSON-decoded input for the "search_intel" tool.
type searchIntelArgs struct {
	// Query is the search string used for full-text retrieval.
	Query string `json:"query"`

	// TopK caps the number of results returned. Defaults to 10 when ≤ 0.
	TopK int `json:"top_k,omitempty"`
}

// defaultTopK is the default result limit when TopK is not provided.
const defaultTopK = 10

// ─────────────────────────────────────────────────────────────────────────────
// Handler constructors
// ─────────────────────────────────────────────────────────────────────────────

// makeFindEntitiesHandler returns a handler for the "find_entities" tool that
// delegates to graph.Find.
func makeFindEntitiesHandler(graph store.EntityGraph) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a findEntitiesArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("knowledge tool: find_entities: failed to parse arguments: %w", err)
		}

		entities, err := graph.Find(ctx, store.EntityFilter{
			Kind:     a.Kind,
			NameLike: a.Name,
		})
		if err != nil {
			return "", fmt.Errorf("knowledge tool: find_entities: %w", err)
		}

		res, err := json.Marshal(entities)
		if err != nil {
			return "", fmt.Errorf("knowledge tool: find_entities: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// makeGetRelationshipsHandler returns a handler for the "get_relationships"
// tool that delegates to graph.GetRelationships.
func makeGetRelationshipsHandler(graph store.EntityGraph) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a getRelationshipsArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("knowledge tool: get_relationships: failed to parse arguments: %w", err)
		}
		if a.EntityID == "" {
			return "", fmt.Errorf("knowledge tool: get_relationships: entity_id must not be empty")
		}

		opts := []store.RelQueryOpt{store.WithOutgoing()}
		if a.IncludeIncoming {
			opts = append(opts, store.WithIncoming())
		}

		rels, err := graph.GetRelationships(ctx, a.EntityID, opts...)
		if err != nil {
			return "", fmt.Errorf("knowledge tool: get_relationships: %w", err)
		}

		res, err := json.Marshal(rels)
		if err != nil {
			return "", fmt.Errorf("knowledge tool: get_relationships: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// makeSearchIntelHandler returns a handler for the "search_intel" tool that
// delegates to intel.SearchByText.
func makeSearchIntelHandler(intel store.IntelStore) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a searchIntelArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("knowledge tool: search_intel: failed to parse arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("knowledge tool: search_intel: query must not be empty")
		}

		topK := a.TopK
		if topK <= 0 {
			topK = defaultTopK
		}

		findings, err := intel.SearchByText(ctx, a.Query, topK)
		if err != nil {
			return "", fmt.Errorf("knowledge tool: search_intel: %w", err)
		}

		res, err := json.Marshal(findings)
		if err != nil {
			return "", fmt.Errorf("knowledge tool: search_intel: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// NewTools
// ─────────────────────────────────────────────────────────────────────────────

// NewTools constructs the full set of knowledge tools, wired to the provided
// relational store backends.
//
// graph is the entity graph used by find_entities and get_relationships.
// intel is the intelligence log used by search_intel.
//
// Both parameters must be non-nil.
func NewTools(graph store.EntityGraph, intel store.IntelStore) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "find_entities",
				Description: "Find entities in the entity graph by name and/or kind. Returns matching entities with their attributes. Useful for locating people, companies, products, or other discovered subjects before pulling their relationships or intelligence.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type":        "string",
							"description": "Substring to match against entity names (case-insensitive). Omit to match all names.",
						},
						"kind": map[string]any{
							"type":        "string",
							"description": "Entity kind to filter by (e.g. person, company, product). Omit to match all kinds.",
						},
					},
					"required": []string{},
				},
				EstimatedDurationMs: 50,
				MaxDurationMs:       200,
				Idempotent:          true,
				CacheableSeconds:    60,
			},
			Handler:     makeFindEntitiesHandler(graph),
			DeclaredP50: 50,
			DeclaredMax: 200,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_relationships",
				Description: "Retrieve the relationship edges touching an entity (e.g. ceo_of, headquartered_in, related_entity). Ideal for expanding an entity's neighbourhood before answering a question about its connections.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"entity_id": map[string]any{
							"type":        "string",
							"description": "The unique entity-graph ID to look up relationships for.",
						},
						"include_incoming": map[string]any{
							"type":        "boolean",
							"description": "Also include relationships where this entity is the target. Defaults to false (outgoing only).",
						},
					},
					"required": []string{"entity_id"},
				},
				EstimatedDurationMs: 80,
				MaxDurationMs:       300,
				Idempotent:          true,
				CacheableSeconds:    60,
			},
			Handler:     makeGetRelationshipsHandler(graph),
			DeclaredP50: 80,
			DeclaredMax: 300,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "search_intel",
				Description: "Search persisted intelligence findings using full-text matching over their payload. Returns relevant findings newest first. Use top_k to control result count.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Full-text search query to retrieve relevant intelligence findings.",
						},
						"top_k": map[string]any{
							"type":        "integer",
							"description": "Maximum number of results to return. Defaults to 10.",
							"minimum":     1,
							"maximum":     100,
						},
					},
					"required": []string{"query"},
				},
				EstimatedDurationMs: 200,
				MaxDurationMs:       800,
				Idempotent:          true,
				CacheableSeconds:    30,
			},
			Handler:     makeSearchIntelHandler(intel),
			DeclaredP50: 200,
			DeclaredMax: 800,
		},
	}
}
