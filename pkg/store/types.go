// Package store defines the data model and persistence interfaces for the
// web intelligence platform's dual relational + vector store.
//
// The architecture mirrors a two-layer split:
//
//   - Relational Store ([PageStore], [IntelStore], [EntityGraph],
//     [LinkStore], [TaskStore]): transactional persistence for the data
//     model of pages, intelligence, entities, relationships, links, and
//     tasks.
//   - Vector Index ([VectorIndex]): dense-vector upsert/search with an
//     open payload map, cross-referenced back to relational rows by id.
//
// All interfaces are public so that external packages can supply
// alternative storage backends (Postgres/pgvector, SQLite, in-memory, …)
// without depending on this module's internals.
//
// Every implementation must be safe for concurrent use.
package store

import "time"

// Page is the canonical representation of a fetched web resource.
type Page struct {
	// ID is a namespace-scoped UUID derived from URL, so the same URL
	// always yields the same id.
	ID string

	// URL is the page's original, unnormalized URL.
	URL string

	// DomainKey is the normalized registrable domain (e.g. "example.com").
	DomainKey string

	// Depth is the crawl depth at which this page was first discovered.
	Depth int

	// PriorityScore is the URL Scorer score inherited from the link that
	// led here.
	PriorityScore float64

	// PageType is an open-vocabulary classification label (homepage,
	// news, profile, listing, …).
	PageType string

	// LastFetchStatus records the outcome of the most recent fetch
	// attempt ("ok", "error:<reason>", "skipped:near-duplicate").
	LastFetchStatus string

	// LastFetchedAt is when the page was last fetched.
	LastFetchedAt time.Time

	// TextLength is the length (runes) of the cleaned text on last fetch.
	TextLength int

	// CreatedAt is when the Page row was first created.
	CreatedAt time.Time

	// UpdatedAt is when the Page row was last refetched.
	UpdatedAt time.Time
}

// PageContent holds the raw and derived content of a Page, 1:1 by ID.
// Separated from Page to keep Page rows small for frontier/list scans.
type PageContent struct {
	// ID matches the owning Page's ID.
	ID string

	// RawHTML is the unmodified fetched document.
	RawHTML string

	// CleanText is the script/style-stripped, whitespace-collapsed text.
	CleanText string

	// Metadata holds extracted meta fields (title, description, og:*).
	Metadata map[string]string

	// Extraction holds the structured-extraction map produced by the LLM
	// Client's extract_intelligence op, keyed by schema section.
	Extraction map[string]any
}

// Entity is a named real-world thing with a kind (company, person,
// location, product, event, and refinements like ceo, founder,
// headquarters, subsidiary).
type Entity struct {
	// ID is a content-addressed UUID.
	ID string

	// Name is the display form.
	Name string

	// Kind classifies the entity. See the type hierarchy in
	// internal/merger for parent/subtype relationships.
	Kind string

	// Data is the open key→value map of known attributes.
	Data map[string]any

	// Metadata carries provenance, merge history, and type-upgrade
	// history. Well-known keys: "aliases" ([]string), "type_history"
	// ([]TypeHistoryEntry), "merged_into" (string), "merged_at"
	// (time.Time), "merge_reason" (string), "merged_from"
	// ([]MergedFromEntry).
	Metadata map[string]any

	// LastSeen is the most recent timestamp at which this entity was
	// referenced by a new observation.
	LastSeen time.Time

	// CreatedAt is when the entity was first created.
	CreatedAt time.Time

	// UpdatedAt is when the entity was last modified.
	UpdatedAt time.Time
}

// TypeHistoryEntry records a kind promotion during get_or_create_entity.
type TypeHistoryEntry struct {
	From   string
	To     string
	At     time.Time
	Reason string
}

// MergedFromEntry records a tombstoned source entity absorbed by a merge.
type MergedFromEntry struct {
	ID   string
	Name string
	Kind string
}

// Aliases returns the entity's known aliases (nicknames, former names),
// or nil if none are recorded.
func (e Entity) Aliases() []string {
	switch v := e.Metadata["aliases"].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// IsTombstoned reports whether this entity has been merged into another
// and should be invisible to dedup, graph walks, and new writes.
func (e Entity) IsTombstoned() bool {
	_, ok := e.Metadata["merged_into"]
	return ok
}

// Intelligence is one verified fact-cluster extracted from one Page about
// one primary Entity, with a numeric confidence in [0,100].
type Intelligence struct {
	// ID is a random UUID generated by NewID.
	ID string

	// PageID is the source Page's ID.
	PageID string

	// EntityID is the primary subject Entity's ID.
	EntityID string

	// Confidence is in [0,100].
	Confidence int

	// Payload carries the structured fact-cluster: basic_info, persons,
	// locations, metrics, financials, products, events, relationships.
	// Empty sections are omitted by the LLM Client.
	Payload map[string]any

	// CreatedAt is when this finding was persisted. Intelligence rows
	// are immutable thereafter.
	CreatedAt time.Time
}

// Relationship is a directed, typed edge between any two addressable
// rows (Entity, Page, Intelligence).
type Relationship struct {
	// ID is a content-addressed UUID derived from (SourceID, TargetID,
	// RelType), making save idempotent.
	ID string

	// SourceID / TargetID are the endpoint ids.
	SourceID, TargetID string

	// SourceType / TargetType name the owning table ("entity", "page",
	// "intelligence").
	SourceType, TargetType string

	// RelType is the semantic label (e.g. mentions_entity, has_intel,
	// page_link, ceo_of, headquartered_in, related_entity).
	RelType string

	// Metadata carries confidence, occurrence count, source URLs, and
	// last-seen time. Well-known keys: "confidence" (float64),
	// "occurrence_count" (int), "source_urls" ([]string), "last_seen"
	// (time.Time).
	Metadata map[string]any

	// CreatedAt is when the relationship was first observed.
	CreatedAt time.Time
}

// OccurrenceCount returns the relationship's observed occurrence count.
func (r Relationship) OccurrenceCount() int {
	switch n := r.Metadata["occurrence_count"].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// Link is a hyperlink observed on one page pointing to another URL.
type Link struct {
	// FromPageID is the source Page's ID.
	FromPageID string

	// ToURL is the target URL (not yet necessarily a known Page).
	ToURL string

	// AnchorText is the link's visible text.
	AnchorText string

	// ScoreReason is the URL Scorer's human-readable reason for the
	// score this link was pushed to the Frontier with.
	ScoreReason string

	// Depth is the crawl depth at which this link was seen.
	Depth int
}

// TaskStatus enumerates the lifecycle states of a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is a persistent unit of asynchronous work.
type Task struct {
	// ID is a generated UUID.
	ID string

	// Type names the handler that processes this task (e.g.
	// "explore_entity", "investigate_relation").
	Type string

	// Status is the current lifecycle state.
	Status TaskStatus

	// Priority orders pending tasks (higher runs first).
	Priority int

	// Params is the JSON-serializable handler input.
	Params map[string]any

	// Progress is in [0,1].
	Progress float64

	// ProgressMessage is a human-readable status line.
	ProgressMessage string

	// Result is the handler's output, set on completion.
	Result map[string]any

	// Error is the failure reason, set when Status is TaskFailed.
	Error string

	// CreatedAt / StartedAt / CompletedAt track the task's lifecycle.
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// DomainPrior is a learned weight the URL Scorer applies additively to
// every URL under a given domain.
type DomainPrior struct {
	Domain string
	Weight float64
}
