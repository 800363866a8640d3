// Package memstore provides thread-safe in-memory implementations of the
// pkg/store interfaces, suitable for unit tests and single-process use
// without Postgres.
package memstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/webintel/webintel/pkg/store"
)

// Store is an in-memory backing for [store.PageStore], [store.IntelStore],
// [store.EntityGraph], [store.LinkStore], and [store.TaskStore]. The zero
// value is not ready to use; call [New].
type Store struct {
	mu sync.RWMutex

	pages    map[string]store.Page
	contents map[string]store.PageContent
	pagesByURL map[string]string // url -> id

	entities map[string]store.Entity
	identity map[string]string // "canonicalName\x00kind" -> entity id

	relationships map[string]store.Relationship // id -> rel
	bySubject     map[string][]string           // subject id -> rel ids (source or target)

	intel       map[string]store.Intelligence
	intelByEnt  map[string][]string

	tasks     map[string]store.Task
	cancelled map[string]bool
}

// New returns an initialised, empty Store.
func New() *Store {
	return &Store{
		pages:         make(map[string]store.Page),
		contents:      make(map[string]store.PageContent),
		pagesByURL:    make(map[string]string),
		entities:      make(map[string]store.Entity),
		identity:      make(map[string]string),
		relationships: make(map[string]store.Relationship),
		bySubject:     make(map[string][]string),
		intel:         make(map[string]store.Intelligence),
		intelByEnt:    make(map[string][]string),
		tasks:         make(map[string]store.Task),
		cancelled:     make(map[string]bool),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// PageStore
// ─────────────────────────────────────────────────────────────────────────────

var _ store.PageStore = (*Store)(nil)

func (s *Store) SavePage(_ context.Context, page store.Page, content store.PageContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.pages[page.ID]; ok {
		page.CreatedAt = existing.CreatedAt
	} else {
		page.CreatedAt = now
	}
	page.UpdatedAt = now
	s.pages[page.ID] = page
	s.contents[page.ID] = content
	s.pagesByURL[page.URL] = page.ID
	return nil
}

func (s *Store) GetByURL(_ context.Context, url string) (*store.Page, *store.PageContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pagesByURL[url]
	if !ok {
		return nil, nil, nil
	}
	p := s.pages[id]
	c := s.contents[id]
	return &p, &c, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*store.Page, *store.PageContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	if !ok {
		return nil, nil, nil
	}
	c := s.contents[id]
	return &p, &c, nil
}

func (s *Store) List(_ context.Context, filter store.PageFilter, limit int) ([]store.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Page, 0, len(s.pages))
	for _, p := range s.pages {
		if filter.DomainKey != "" && p.DomainKey != filter.DomainKey {
			continue
		}
		if filter.PageType != "" && p.PageType != filter.PageType {
			continue
		}
		if filter.MaxDepth > 0 && p.Depth > filter.MaxDepth {
			continue
		}
		if p.Depth < filter.MinDepth {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkVisited(_ context.Context, pageID string, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		return fmt.Errorf("memstore: mark visited: page %q not found", pageID)
	}
	p.LastFetchStatus = status
	p.LastFetchedAt = at
	s.pages[pageID] = p
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// IntelStore
// ─────────────────────────────────────────────────────────────────────────────

var _ store.IntelStore = (*Store)(nil)

func (s *Store) Save(_ context.Context, intel store.Intelligence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if intel.CreatedAt.IsZero() {
		intel.CreatedAt = time.Now()
	}
	s.intel[intel.ID] = intel
	s.intelByEnt[intel.EntityID] = append(s.intelByEnt[intel.EntityID], intel.ID)

	s.saveRelationshipLocked(store.Relationship{
		ID:         store.RelationshipID(intel.PageID, intel.ID, "has_intel"),
		SourceID:   intel.PageID,
		TargetID:   intel.ID,
		SourceType: "page",
		TargetType: "intelligence",
		RelType:    "has_intel",
		Metadata:   map[string]any{},
		CreatedAt:  time.Now(),
	})
	s.saveRelationshipLocked(store.Relationship{
		ID:         store.RelationshipID(intel.PageID, intel.EntityID, "mentions_entity"),
		SourceID:   intel.PageID,
		TargetID:   intel.EntityID,
		SourceType: "page",
		TargetType: "entity",
		RelType:    "mentions_entity",
		Metadata:   map[string]any{},
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *Store) SearchByEntityName(_ context.Context, query string, limit int) ([]store.Intelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []store.Intelligence
	for _, intel := range s.intel {
		ent, ok := s.entities[intel.EntityID]
		if !ok || !strings.Contains(strings.ToLower(ent.Name), q) {
			continue
		}
		out = append(out, intel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SearchByText(_ context.Context, query string, limit int) ([]store.Intelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []store.Intelligence
	for _, intel := range s.intel {
		if strings.Contains(strings.ToLower(fmt.Sprint(intel.Payload)), q) {
			out = append(out, intel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*store.Intelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.intel[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func (s *Store) ListByEntity(_ context.Context, entityID string) ([]store.Intelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.intelByEnt[entityID]
	out := make([]store.Intelligence, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.intel[id]; ok {
			out = append(out, i)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EntityGraph
// ─────────────────────────────────────────────────────────────────────────────

var _ store.EntityGraph = (*Store)(nil)

func (s *Store) SaveEntity(_ context.Context, entity store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEntityLocked(entity)
}

func (s *Store) saveEntityLocked(entity store.Entity) error {
	now := time.Now()
	if existing, ok := s.entities[entity.ID]; ok {
		entity.CreatedAt = existing.CreatedAt
	} else {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now
	s.entities[entity.ID] = entity
	if !entity.IsTombstoned() {
		s.identity[identityKey(entity)] = entity.ID
	}
	return nil
}

func identityKey(e store.Entity) string {
	return strings.ToLower(e.Name) + "\x00" + e.Kind
}

func (s *Store) GetEntity(_ context.Context, id string) (*store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) FindByIdentity(_ context.Context, canonicalName, normalizedKind string) (*store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identity[strings.ToLower(canonicalName)+"\x00"+normalizedKind]
	if !ok {
		return nil, nil
	}
	e := s.entities[id]
	if e.IsTombstoned() {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) FindSimilar(_ context.Context, query string, limit int) ([]store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []store.Entity
	for _, e := range s.entities {
		if e.IsTombstoned() {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(q, strings.ToLower(e.Name)) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Find(_ context.Context, filter store.EntityFilter) ([]store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Entity
	for _, e := range s.entities {
		if e.IsTombstoned() && !filter.IncludeTombstoned {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.NameLike != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(filter.NameLike)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SaveRelationship(_ context.Context, rel store.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveRelationshipLocked(rel)
	return nil
}

func (s *Store) saveRelationshipLocked(rel store.Relationship) {
	if rel.ID == "" {
		rel.ID = store.RelationshipID(rel.SourceID, rel.TargetID, rel.RelType)
	}
	if existing, ok := s.relationships[rel.ID]; ok {
		if rel.Metadata == nil {
			rel.Metadata = map[string]any{}
		}
		count := existing.OccurrenceCount() + 1
		rel.Metadata["occurrence_count"] = count
		rel.CreatedAt = existing.CreatedAt
		if conf, ok := existing.Metadata["confidence"].(float64); ok {
			boosted := conf + (1-conf)*0.1
			rel.Metadata["confidence"] = math.Min(boosted, 1.0)
		}
	} else {
		if rel.Metadata == nil {
			rel.Metadata = map[string]any{}
		}
		rel.Metadata["occurrence_count"] = 1
		if rel.CreatedAt.IsZero() {
			rel.CreatedAt = time.Now()
		}
		s.bySubject[rel.SourceID] = append(s.bySubject[rel.SourceID], rel.ID)
		s.bySubject[rel.TargetID] = append(s.bySubject[rel.TargetID], rel.ID)
	}
	s.relationships[rel.ID] = rel
}

func (s *Store) GetRelationships(_ context.Context, id string, opts ...store.RelQueryOpt) ([]store.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	relTypes, incoming, outgoing, limit := store.ResolveRelQueryOpts(opts)
	out := []store.Relationship{}
	for _, relID := range s.bySubject[id] {
		rel, ok := s.relationships[relID]
		if !ok {
			continue
		}
		if len(relTypes) > 0 && !slices.Contains(relTypes, rel.RelType) {
			continue
		}
		if rel.SourceID == id && !outgoing {
			continue
		}
		if rel.TargetID == id && rel.SourceID != id && !incoming {
			continue
		}
		out = append(out, rel)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteRelationship(_ context.Context, sourceID, targetID, relType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := store.RelationshipID(sourceID, targetID, relType)
	delete(s.relationships, id)
	return nil
}

// MergeEntities implements the soft-merge algorithm of spec §4.9.
func (s *Store) MergeEntities(_ context.Context, sourceID, targetID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sourceID == targetID {
		return "", fmt.Errorf("memstore: merge entities: source and target are the same id %q", sourceID)
	}
	src, srcOK := s.entities[sourceID]
	tgt, tgtOK := s.entities[targetID]
	if !srcOK || !tgtOK {
		return "", fmt.Errorf("memstore: merge entities: source or target entity missing")
	}

	survivor, absorbed := selectSurvivor(src, tgt)

	merged := survivor
	if merged.Data == nil {
		merged.Data = map[string]any{}
	}
	for k, v := range absorbed.Data {
		if _, exists := merged.Data[k]; !exists || isEmptyValue(merged.Data[k]) {
			merged.Data[k] = v
		}
	}
	if merged.Metadata == nil {
		merged.Metadata = map[string]any{}
	}
	history, _ := merged.Metadata["merged_from"].([]store.MergedFromEntry)
	history = append(history, store.MergedFromEntry{ID: absorbed.ID, Name: absorbed.Name, Kind: absorbed.Kind})
	merged.Metadata["merged_from"] = history
	if absorbed.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = absorbed.LastSeen
	}

	// Rewire relationships from absorbed to survivor, dropping dupes.
	for _, relID := range append([]string(nil), s.bySubject[absorbed.ID]...) {
		rel, ok := s.relationships[relID]
		if !ok {
			continue
		}
		rewired := rel
		if rel.SourceID == absorbed.ID {
			rewired.SourceID = merged.ID
		}
		if rel.TargetID == absorbed.ID {
			rewired.TargetID = merged.ID
		}
		newID := store.RelationshipID(rewired.SourceID, rewired.TargetID, rewired.RelType)
		if newID == relID {
			continue
		}
		delete(s.relationships, relID)
		if _, dup := s.relationships[newID]; dup {
			continue // drop duplicate rewrite
		}
		rewired.ID = newID
		s.relationships[newID] = rewired
		s.bySubject[rewired.SourceID] = append(s.bySubject[rewired.SourceID], newID)
		s.bySubject[rewired.TargetID] = append(s.bySubject[rewired.TargetID], newID)
	}

	// Rewire intelligence ownership.
	for _, id := range s.intelByEnt[absorbed.ID] {
		if intel, ok := s.intel[id]; ok {
			intel.EntityID = merged.ID
			s.intel[id] = intel
		}
		s.intelByEnt[merged.ID] = append(s.intelByEnt[merged.ID], id)
	}
	delete(s.intelByEnt, absorbed.ID)

	// Tombstone the absorbed entity.
	if absorbed.Metadata == nil {
		absorbed.Metadata = map[string]any{}
	}
	absorbed.Metadata["merged_into"] = merged.ID
	absorbed.Metadata["merged_at"] = time.Now()
	absorbed.Metadata["merge_reason"] = "soft_merge"
	delete(s.identity, identityKey(absorbed))
	s.entities[absorbed.ID] = absorbed

	if err := s.saveEntityLocked(merged); err != nil {
		return "", err
	}
	return merged.ID, nil
}

// selectSurvivor picks the merge survivor by (kind-specificity desc,
// data-richness desc, name-length desc), per spec §4.9 step 2.
func selectSurvivor(a, b store.Entity) (survivor, absorbed store.Entity) {
	rankA, rankB := kindSpecificity(a.Kind), kindSpecificity(b.Kind)
	if rankA != rankB {
		if rankA > rankB {
			return a, b
		}
		return b, a
	}
	if len(a.Data) != len(b.Data) {
		if len(a.Data) > len(b.Data) {
			return a, b
		}
		return b, a
	}
	if len(a.Name) >= len(b.Name) {
		return a, b
	}
	return b, a
}

// kindSpecificity mirrors internal/merger's specificity ranks so the
// in-memory store's merge selection matches the Entity Merger's rule.
func kindSpecificity(kind string) int {
	switch kind {
	case "", "entity", "general", "unknown":
		return 0
	case "person", "org", "location", "address", "product", "event":
		return 1
	default:
		return 2
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func (s *Store) ConnectedComponents(_ context.Context) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visited := map[string]bool{}
	var components [][]string
	for id, e := range s.entities {
		if e.IsTombstoned() || visited[id] {
			continue
		}
		var component []string
		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, relID := range s.bySubject[cur] {
				rel, ok := s.relationships[relID]
				if !ok {
					continue
				}
				for _, neighbor := range []string{rel.SourceID, rel.TargetID} {
					if _, isEnt := s.entities[neighbor]; isEnt && !visited[neighbor] {
						visited[neighbor] = true
						queue = append(queue, neighbor)
					}
				}
			}
		}
		components = append(components, component)
	}
	return components, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// LinkStore
// ─────────────────────────────────────────────────────────────────────────────

var _ store.LinkStore = (*Store)(nil)

func (s *Store) SaveBatch(ctx context.Context, links []store.Link, graph store.EntityGraph) error {
	s.mu.RLock()
	pagesByURL := make(map[string]string, len(s.pagesByURL))
	for url, id := range s.pagesByURL {
		pagesByURL[url] = id
	}
	fromPageURL := make(map[string]string)
	for url, id := range s.pagesByURL {
		fromPageURL[id] = url
	}
	s.mu.RUnlock()

	for _, link := range links {
		toID, known := pagesByURL[link.ToURL]
		if !known {
			continue
		}
		if err := graph.SaveRelationship(ctx, store.Relationship{
			SourceID:   link.FromPageID,
			TargetID:   toID,
			SourceType: "page",
			TargetType: "page",
			RelType:    "page_link",
			Metadata: map[string]any{
				"anchor_text":  link.AnchorText,
				"score_reason": link.ScoreReason,
				"depth":        link.Depth,
			},
		}); err != nil {
			return fmt.Errorf("memstore: save link relationship: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// TaskStore
// ─────────────────────────────────────────────────────────────────────────────

var _ store.TaskStore = (*Store)(nil)

func (s *Store) Submit(_ context.Context, task store.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = store.NewID()
	}
	task.Status = store.TaskPending
	task.CreatedAt = time.Now()
	s.tasks[task.ID] = task
	return task.ID, nil
}

func (s *Store) Get(_ context.Context, id string) (*store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) List(_ context.Context, filter store.TaskFilter, limit int) ([]store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ClaimNext(_ context.Context) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *store.Task
	for id, t := range s.tasks {
		if t.Status != store.TaskPending {
			continue
		}
		t := t
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
			t.ID = id
			best = &t
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = store.TaskRunning
	best.StartedAt = time.Now()
	s.tasks[best.ID] = *best
	return best, nil
}

func (s *Store) UpdateProgress(_ context.Context, id string, progress float64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("memstore: update progress: task %q not found", id)
	}
	t.Progress = progress
	t.ProgressMessage = message
	s.tasks[id] = t
	return nil
}

func (s *Store) Complete(_ context.Context, id string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("memstore: complete: task %q not found", id)
	}
	t.Status = store.TaskCompleted
	t.Result = result
	t.Progress = 1.0
	t.CompletedAt = time.Now()
	s.tasks[id] = t
	return nil
}

func (s *Store) Fail(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("memstore: fail: task %q not found", id)
	}
	t.Status = store.TaskFailed
	t.Error = reason
	t.CompletedAt = time.Now()
	s.tasks[id] = t
	return nil
}

func (s *Store) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("memstore: cancel: task %q not found", id)
	}
	if t.Status == store.TaskPending {
		t.Status = store.TaskCancelled
		t.CompletedAt = time.Now()
		s.tasks[id] = t
		return nil
	}
	s.cancelled[id] = true
	return nil
}

func (s *Store) IsCancelled(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled[id], nil
}

func (s *Store) RecoverRunning(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tasks {
		if t.Status == store.TaskRunning {
			t.Status = store.TaskFailed
			t.Error = "restarted while running"
			t.CompletedAt = time.Now()
			s.tasks[id] = t
			n++
		}
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// VectorIndex (in-memory, brute-force cosine search)
// ─────────────────────────────────────────────────────────────────────────────

// VectorStore is an in-memory [store.VectorIndex] using brute-force
// cosine similarity. Suitable for tests and small datasets.
type VectorStore struct {
	mu    sync.RWMutex
	dim   int
	points map[string]vectorPoint
}

type vectorPoint struct {
	vec     []float32
	payload store.VectorPayload
}

// NewVectorStore returns an empty VectorStore with the given dimension.
func NewVectorStore(dim int) *VectorStore {
	return &VectorStore{dim: dim, points: make(map[string]vectorPoint)}
}

var _ store.VectorIndex = (*VectorStore)(nil)

func (v *VectorStore) Upsert(_ context.Context, id string, vec []float32, payload store.VectorPayload) error {
	if len(vec) != v.dim {
		return fmt.Errorf("memstore: vector dimension mismatch: got %d want %d", len(vec), v.dim)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.points[id] = vectorPoint{vec: vec, payload: payload}
	return nil
}

func (v *VectorStore) Search(_ context.Context, vec []float32, topK int, filter store.VectorFilter) ([]store.VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	hits := make([]store.VectorHit, 0, len(v.points))
	for id, p := range v.points {
		if filter.Kind != "" && p.payload.Kind != filter.Kind {
			continue
		}
		if filter.URL != "" && p.payload.URL != filter.URL {
			continue
		}
		if filter.Entity != "" && p.payload.Entity != filter.Entity {
			continue
		}
		hits = append(hits, store.VectorHit{ID: id, Score: cosineSimilarity(vec, p.vec), Payload: p.payload, Vector: p.vec})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (v *VectorStore) Dimensions() int { return v.dim }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
