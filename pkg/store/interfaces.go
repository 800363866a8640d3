package store

import (
	"context"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Vector Index
// ─────────────────────────────────────────────────────────────────────────────

// VectorKind classifies a vector point's payload, matching the
// per-page embedding strategy of §4.5: title, description, summary, url,
// and per-sentence/per-finding/per-entity views.
type VectorKind string

const (
	KindPageRaw      VectorKind = "page_raw"
	KindPage         VectorKind = "page"
	KindPageSentence VectorKind = "page_sentence"
	KindFinding      VectorKind = "finding"
	KindEntity       VectorKind = "entity"
)

// VectorPayload is the open map stored alongside a vector. It always
// carries at minimum Kind and the relational cross-reference ids.
type VectorPayload struct {
	Kind       VectorKind
	URL        string
	Entity     string
	EntityType string

	// Cross-reference ids back to the Relational Store, so a vector hit
	// can be hydrated. At most one is expected to be non-empty for any
	// given Kind, except KindPage/KindPageSentence which always carry
	// SQLPageID.
	SQLPageID   string
	SQLIntelID  string
	SQLEntityID string

	// ChunkIndex orders per-sentence vectors within a page, used by the
	// RAG Answerer's thin-snippet expansion (§4.12 Phase 2).
	ChunkIndex int

	// Text is the literal snippet the vector represents, returned
	// alongside a hit so callers don't need a second hydration round
	// trip just to show the user what matched.
	Text string
}

// VectorHit pairs a matched point with its similarity score and payload.
type VectorHit struct {
	ID       string
	Score    float64
	Payload  VectorPayload
	Vector   []float32
}

// VectorFilter restricts a VectorIndex.Search call to points whose
// payload fields equal the given values. Zero-value fields are ignored.
type VectorFilter struct {
	Kind   VectorKind
	URL    string
	Entity string
}

// VectorIndex upserts and searches dense vectors with an open payload.
// Implementations auto-create the backing collection on first use with
// vector dimension D and cosine distance.
//
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Upsert stores vec under id with payload. id must be a UUID string;
	// callers deriving ids from non-UUID sources should use a
	// namespace-scoped UUID5.
	Upsert(ctx context.Context, id string, vec []float32, payload VectorPayload) error

	// Search returns the topK points nearest to vec by cosine
	// similarity, honoring filter (zero-value fields match anything).
	// Results are ordered by descending Score (most similar first).
	// Returns an empty (non-nil) slice when no points match.
	Search(ctx context.Context, vec []float32, topK int, filter VectorFilter) ([]VectorHit, error)

	// Dimensions reports the configured vector dimension D.
	Dimensions() int
}

// ─────────────────────────────────────────────────────────────────────────────
// Page Store
// ─────────────────────────────────────────────────────────────────────────────

// PageFilter narrows PageStore.List. Zero-value fields are ignored.
type PageFilter struct {
	DomainKey string
	PageType  string
	MinDepth  int
	MaxDepth  int
}

// PageStore persists Page and PageContent rows.
//
// Implementations must be safe for concurrent use.
type PageStore interface {
	// SavePage upserts page and content in one transaction (same id).
	SavePage(ctx context.Context, page Page, content PageContent) error

	// GetByURL returns the Page and PageContent for url's derived id.
	// Returns (nil, nil, nil) when no such page exists.
	GetByURL(ctx context.Context, url string) (*Page, *PageContent, error)

	// GetByID returns the Page and PageContent for id.
	// Returns (nil, nil, nil) when no such page exists.
	GetByID(ctx context.Context, id string) (*Page, *PageContent, error)

	// List returns pages matching filter, optionally capped at limit (0
	// means implementation default).
	List(ctx context.Context, filter PageFilter, limit int) ([]Page, error)

	// MarkVisited records a fetch attempt's outcome without touching
	// PageContent (used for failed fetches that never produced content).
	MarkVisited(ctx context.Context, pageID string, status string, at time.Time) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Intel Store
// ─────────────────────────────────────────────────────────────────────────────

// IntelStore persists Intelligence rows and links them to their source
// Page and primary Entity.
//
// Implementations must be safe for concurrent use.
type IntelStore interface {
	// Save persists intel and, in the same transaction, upserts
	// has_intel / mentions_entity relationships linking it to its
	// source page and primary entity.
	Save(ctx context.Context, intel Intelligence) error

	// SearchByEntityName returns Intelligence rows whose primary entity
	// name matches query (case-insensitive substring), newest first.
	SearchByEntityName(ctx context.Context, query string, limit int) ([]Intelligence, error)

	// SearchByText returns Intelligence rows whose payload contains
	// query as a raw-text substring, newest first.
	SearchByText(ctx context.Context, query string, limit int) ([]Intelligence, error)

	// GetByID returns the Intelligence row with the given id.
	// Returns (nil, nil) when no such row exists.
	GetByID(ctx context.Context, id string) (*Intelligence, error)

	// ListByEntity returns all Intelligence rows whose EntityID matches.
	ListByEntity(ctx context.Context, entityID string) ([]Intelligence, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Entity Graph (relational entity + relationship store)
// ─────────────────────────────────────────────────────────────────────────────

// EntityFilter narrows EntityGraph.Find. Zero-value fields are ignored.
type EntityFilter struct {
	Kind           string
	NameLike       string
	IncludeTombstoned bool
}

// RelQueryOpt configures EntityGraph.GetRelationships.
type RelQueryOpt func(*relQueryOptions)

type relQueryOptions struct {
	relTypes     []string
	directionIn  bool
	directionOut bool
	limit        int
}

// WithRelTypes restricts results to the given RelType values. An empty
// list (the default) returns all types.
func WithRelTypes(types ...string) RelQueryOpt {
	return func(o *relQueryOptions) { o.relTypes = append(o.relTypes, types...) }
}

// WithIncoming includes relationships where the queried id is the
// target. Without WithOutgoing, only incoming relationships are returned;
// with no direction option at all, only outgoing ones are.
func WithIncoming() RelQueryOpt { return func(o *relQueryOptions) { o.directionIn = true } }

// WithOutgoing includes relationships where the queried id is the
// source. Outgoing is the default when no direction option is given;
// combined with WithIncoming, both directions are returned.
func WithOutgoing() RelQueryOpt { return func(o *relQueryOptions) { o.directionOut = true } }

// WithRelLimit caps the number of relationships returned. 0 means the
// implementation may apply its own default.
func WithRelLimit(n int) RelQueryOpt { return func(o *relQueryOptions) { o.limit = n } }

// ResolveRelQueryOpts applies opts to a fresh options struct and reports
// the resulting (relTypes, includeIncoming, includeOutgoing, limit).
// Exported so postgres and in-memory implementations share one reading
// of the functional options without re-exporting the unexported struct.
func ResolveRelQueryOpts(opts []RelQueryOpt) (relTypes []string, includeIncoming, includeOutgoing bool, limit int) {
	o := &relQueryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if !o.directionIn && !o.directionOut {
		o.directionOut = true
	}
	return o.relTypes, o.directionIn, o.directionOut, o.limit
}

// EntityGraph provides CRUD on Entity nodes and Relationship edges, plus
// the identity/merge operations used by the Entity Merger (§4.9) and
// connected-components clustering (§4.6, supplement C.4).
//
// Mutating operations act as upserts; deleting a non-existent row is not
// an error. Implementations must be safe for concurrent use.
type EntityGraph interface {
	// SaveEntity upserts entity by id.
	SaveEntity(ctx context.Context, entity Entity) error

	// GetEntity retrieves an entity by id. Returns (nil, nil) when the
	// entity does not exist.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// FindByIdentity looks up a live (non-tombstoned) entity by its
	// (canonical name, normalized kind) identity. Returns (nil, nil)
	// when none exists.
	FindByIdentity(ctx context.Context, canonicalName, normalizedKind string) (*Entity, error)

	// FindSimilar returns live entities whose canonical name fuzzy-
	// matches query, for use by the Entity Merger's semantic dedup pass
	// and the Gap Analyzer.
	FindSimilar(ctx context.Context, query string, limit int) ([]Entity, error)

	// Find returns entities matching filter. Tombstoned entities are
	// excluded unless filter.IncludeTombstoned is set.
	Find(ctx context.Context, filter EntityFilter) ([]Entity, error)

	// SaveRelationship upserts rel, keyed by (SourceID, TargetID,
	// RelType). Repeated saves increment occurrence_count and may boost
	// confidence rather than duplicating rows.
	SaveRelationship(ctx context.Context, rel Relationship) error

	// GetRelationships returns relationships touching id, filtered and
	// directed per opts. Returns an empty (non-nil) slice when none
	// match.
	GetRelationships(ctx context.Context, id string, opts ...RelQueryOpt) ([]Relationship, error)

	// DeleteRelationship removes the edge (sourceID, targetID, relType).
	// Deleting a non-existent edge is not an error.
	DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) error

	// MergeEntities performs the soft-merge described in §4.9: it
	// selects the survivor per specificity/richness/name-length, merges
	// fields and metadata, rewires relationships/intelligence/pages from
	// source to target (dropping rewrites that would duplicate an
	// existing relationship), and tombstones the source. Returns the
	// surviving entity's id.
	MergeEntities(ctx context.Context, sourceID, targetID string) (survivorID string, err error)

	// ConnectedComponents groups all live entities into clusters by
	// relationship connectivity, ignoring edge direction. Used by the
	// Agent Service's Explore & Prioritize mode to bound BFS traversal
	// per cluster (supplement C.4).
	ConnectedComponents(ctx context.Context) ([][]string, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Link Store
// ─────────────────────────────────────────────────────────────────────────────

// LinkStore persists observed hyperlinks and promotes page_link
// relationships once both endpoints are known Pages.
//
// Implementations must be safe for concurrent use.
type LinkStore interface {
	// SaveBatch persists links. For each link whose ToURL resolves to a
	// known Page, a page_link Relationship is emitted via graph.
	SaveBatch(ctx context.Context, links []Link, graph EntityGraph) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Task Store
// ─────────────────────────────────────────────────────────────────────────────

// TaskFilter narrows TaskStore.List. Zero-value fields are ignored.
type TaskFilter struct {
	Status TaskStatus
	Type   string
}

// TaskStore persists the Task table backing the Task Queue (§4.11).
//
// Implementations must be safe for concurrent use.
type TaskStore interface {
	// Submit inserts a new pending task and returns its generated id.
	Submit(ctx context.Context, task Task) (string, error)

	// Get retrieves a task by id. Returns (nil, nil) when not found.
	Get(ctx context.Context, id string) (*Task, error)

	// List returns tasks matching filter, ordered (priority desc,
	// created_at asc).
	List(ctx context.Context, filter TaskFilter, limit int) ([]Task, error)

	// ClaimNext atomically transitions the highest-priority pending task
	// to running and returns it. Returns (nil, nil) when none are
	// pending.
	ClaimNext(ctx context.Context) (*Task, error)

	// UpdateProgress sets progress and message on a running task.
	UpdateProgress(ctx context.Context, id string, progress float64, message string) error

	// Complete transitions a task to completed with the given result.
	Complete(ctx context.Context, id string, result map[string]any) error

	// Fail transitions a task to failed with the given error reason.
	Fail(ctx context.Context, id string, reason string) error

	// Cancel transitions a pending task to cancelled immediately, or
	// flags a running task for cooperative cancellation (see
	// IsCancelled).
	Cancel(ctx context.Context, id string) error

	// IsCancelled reports whether task id has been flagged for
	// cancellation. Handlers must poll this at meaningful checkpoints.
	IsCancelled(ctx context.Context, id string) (bool, error)

	// RecoverRunning transitions every task left in status running to
	// failed with reason "restarted while running". Called once on
	// process startup. Returns the number of tasks recovered.
	RecoverRunning(ctx context.Context) (int, error)
}
