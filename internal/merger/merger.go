// Package merger implements the Entity Merger: canonicalization, type
// hierarchy, get-or-create identity resolution, and deduplication sweeps
// over the EntityGraph (spec §4.9).
package merger

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/webintel/webintel/pkg/store"
)

// companySuffixes are stripped during canonicalization so that
// "Microsoft", "Microsoft Corp.", and "Microsoft Corporation" all
// canonicalize identically.
var companySuffixes = []string{
	"incorporated", "inc.", "inc",
	"corporation", "corp.", "corp",
	"limited", "ltd.", "ltd",
	"l.l.c.", "llc",
	"company", "co.",
	"gmbh", "ag",
}

var punctRE = regexp.MustCompile(`[^\w\s]`)
var whitespaceRE = regexp.MustCompile(`\s+`)

// Canonicalize lowercases name, strips company suffixes and punctuation,
// and collapses whitespace, so name variants resolve to one identity.
func Canonicalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range companySuffixes {
		lower = strings.TrimSuffix(strings.TrimSpace(lower), suffix)
		lower = strings.TrimSpace(lower)
	}
	lower = punctRE.ReplaceAllString(lower, "")
	lower = whitespaceRE.ReplaceAllString(lower, " ")
	return strings.TrimSpace(lower)
}

// orgSynonyms all normalize to the single kind "org".
var orgSynonyms = map[string]bool{
	"organization": true, "organisation": true, "corporation": true,
	"corp": true, "company": true, "business": true, "firm": true,
}

// NormalizeKind maps organization synonyms to "org" and lowercases
// everything else, leaving specialized kinds (ceo, founder, …) as-is.
func NormalizeKind(kind string) string {
	lower := strings.ToLower(strings.TrimSpace(kind))
	if orgSynonyms[lower] {
		return "org"
	}
	return lower
}

// Specificity ranks a kind for the merge-survivor and type-promotion
// rules: generic = 0, parent kinds = 1, specialized kinds = 2.
func Specificity(kind string) int {
	switch NormalizeKind(kind) {
	case "", "entity", "general", "unknown":
		return 0
	case "person", "org", "location", "address", "product", "event":
		return 1
	default:
		return 2
	}
}

// GetOrCreate resolves (name, kind) to an Entity id, creating one if
// none exists. If an existing entity is found, data is merged
// (unseen keys added, empty existing values overwritten) and the kind
// is promoted — with a type-history entry recorded in metadata — when
// the incoming kind outranks the stored one (spec §4.9 step 2).
func GetOrCreate(ctx context.Context, graph store.EntityGraph, name, kind string, data map[string]any) (id string, created bool, err error) {
	canonical := Canonicalize(name)
	normalizedKind := NormalizeKind(kind)

	existing, err := graph.FindByIdentity(ctx, canonical, normalizedKind)
	if err != nil {
		return "", false, fmt.Errorf("merger: get or create: lookup: %w", err)
	}
	if existing == nil {
		// Identity lookup is kind-scoped; also check whether a differently
		// kinded entity with the same canonical name already exists, so a
		// later type promotion has something to promote.
		candidates, err := graph.FindSimilar(ctx, name, 5)
		if err != nil {
			return "", false, fmt.Errorf("merger: get or create: find similar: %w", err)
		}
		for _, c := range candidates {
			if Canonicalize(c.Name) == canonical {
				existing = &c
				break
			}
		}
	}

	if existing == nil {
		now := time.Now()
		e := store.Entity{
			ID:        store.EntityID(canonical, normalizedKind),
			Name:      name,
			Kind:      normalizedKind,
			Data:      data,
			Metadata:  map[string]any{},
			LastSeen:  now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := graph.SaveEntity(ctx, e); err != nil {
			return "", false, fmt.Errorf("merger: get or create: save: %w", err)
		}
		return e.ID, true, nil
	}

	merged := *existing
	if merged.Data == nil {
		merged.Data = map[string]any{}
	}
	for k, v := range data {
		if cur, ok := merged.Data[k]; !ok || isEmpty(cur) {
			merged.Data[k] = v
		}
	}

	if Specificity(normalizedKind) > Specificity(merged.Kind) {
		if merged.Metadata == nil {
			merged.Metadata = map[string]any{}
		}
		history, _ := merged.Metadata["type_history"].([]store.TypeHistoryEntry)
		history = append(history, store.TypeHistoryEntry{
			From: merged.Kind, To: normalizedKind, At: time.Now(), Reason: "get_or_create_entity promotion",
		})
		merged.Metadata["type_history"] = history
		merged.Kind = normalizedKind
	}
	merged.LastSeen = time.Now()
	merged.UpdatedAt = time.Now()

	if err := graph.SaveEntity(ctx, merged); err != nil {
		return "", false, fmt.Errorf("merger: get or create: save merged: %w", err)
	}
	return merged.ID, false, nil
}

func isEmpty(v any) bool {
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

// kindMergePriority orders the cross-kind dedup pass of
// deduplicate_entities: for a generic "entity" survivor whose canonical
// name matches a more-specific entity, merge the generic into the
// specific, preferring these kinds in order.
var kindMergePriority = []string{"person", "org", "company", "product", "location", "event"}

// Deduplicate performs the two-pass sweep of spec §4.9
// deduplicate_entities: (1) within-kind, group live entities by
// canonical name and merge each group; (2) cross-kind, merge generic
// "entity"-kind survivors into a matching specific-kind entity. Returns
// a map of absorbed-id → survivor-id.
func Deduplicate(ctx context.Context, graph store.EntityGraph) (map[string]string, error) {
	entities, err := graph.Find(ctx, store.EntityFilter{})
	if err != nil {
		return nil, fmt.Errorf("merger: deduplicate: list entities: %w", err)
	}

	result := map[string]string{}

	groups := map[string][]store.Entity{}
	for _, e := range entities {
		key := Canonicalize(e.Name) + "|" + NormalizeKind(e.Kind)
		groups[key] = append(groups[key], e)
	}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return rankEntity(group[i]) > rankEntity(group[j])
		})
		survivorID := group[0].ID
		for _, absorbed := range group[1:] {
			mergedID, err := graph.MergeEntities(ctx, absorbed.ID, survivorID)
			if err != nil {
				return nil, fmt.Errorf("merger: deduplicate: within-kind merge: %w", err)
			}
			survivorID = mergedID
			result[absorbed.ID] = survivorID
		}
	}

	generics, err := graph.Find(ctx, store.EntityFilter{Kind: "entity"})
	if err != nil {
		return nil, fmt.Errorf("merger: deduplicate: list generics: %w", err)
	}
	for _, generic := range generics {
		if generic.IsTombstoned() {
			continue
		}
		canonical := Canonicalize(generic.Name)
		for _, preferredKind := range kindMergePriority {
			specific, err := graph.FindByIdentity(ctx, canonical, preferredKind)
			if err != nil {
				return nil, fmt.Errorf("merger: deduplicate: cross-kind lookup: %w", err)
			}
			if specific == nil || specific.ID == generic.ID {
				continue
			}
			mergedID, err := graph.MergeEntities(ctx, generic.ID, specific.ID)
			if err != nil {
				return nil, fmt.Errorf("merger: deduplicate: cross-kind merge: %w", err)
			}
			result[generic.ID] = mergedID
			break
		}
	}

	return result, nil
}

func rankEntity(e store.Entity) int {
	return Specificity(e.Kind)*1_000_000 + len(e.Data)*1_000 + len(e.Name)
}

// Embedder produces a dense vector for a piece of text, used by
// SemanticDeduplicate's nearest-neighbour pass.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticDeduplicate is the optional semantic-dedup pass of spec §4.9:
// for each still-live entity, embed its name, search the vector index
// for near neighbours, and merge pairs whose similarity exceeds
// threshold and whose kinds are compatible (same normalized kind, or
// either is generic). When embedder is nil, falls back to Jaro-Winkler
// string similarity over live entity names instead of vector search.
func SemanticDeduplicate(ctx context.Context, graph store.EntityGraph, vectors store.VectorIndex, embedder Embedder, threshold float64) (map[string]string, error) {
	entities, err := graph.Find(ctx, store.EntityFilter{})
	if err != nil {
		return nil, fmt.Errorf("merger: semantic dedup: list entities: %w", err)
	}

	result := map[string]string{}
	tombstoned := map[string]bool{}

	compatible := func(a, b store.Entity) bool {
		ka, kb := NormalizeKind(a.Kind), NormalizeKind(b.Kind)
		return ka == kb || Specificity(a.Kind) == 0 || Specificity(b.Kind) == 0
	}

	if embedder == nil || vectors == nil {
		for i, a := range entities {
			if tombstoned[a.ID] {
				continue
			}
			for j := i + 1; j < len(entities); j++ {
				b := entities[j]
				if tombstoned[b.ID] || a.ID == b.ID {
					continue
				}
				if !compatible(a, b) {
					continue
				}
				score := matchr.JaroWinkler(strings.ToLower(a.Name), strings.ToLower(b.Name), false)
				if score < threshold {
					continue
				}
				survivor, absorbed := a, b
				if rankEntity(b) > rankEntity(a) {
					survivor, absorbed = b, a
				}
				mergedID, err := graph.MergeEntities(ctx, absorbed.ID, survivor.ID)
				if err != nil {
					return nil, fmt.Errorf("merger: semantic dedup: merge: %w", err)
				}
				tombstoned[absorbed.ID] = true
				result[absorbed.ID] = mergedID
			}
		}
		return result, nil
	}

	for _, e := range entities {
		if tombstoned[e.ID] {
			continue
		}
		vec, err := embedder.Embed(ctx, e.Name)
		if err != nil {
			return nil, fmt.Errorf("merger: semantic dedup: embed %q: %w", e.Name, err)
		}
		hits, err := vectors.Search(ctx, vec, 5, store.VectorFilter{Kind: store.KindEntity})
		if err != nil {
			return nil, fmt.Errorf("merger: semantic dedup: search: %w", err)
		}
		for _, hit := range hits {
			if hit.Score < threshold {
				continue
			}
			otherID := hit.Payload.SQLEntityID
			if otherID == "" || otherID == e.ID || tombstoned[otherID] {
				continue
			}
			other, err := graph.GetEntity(ctx, otherID)
			if err != nil || other == nil {
				continue
			}
			if !compatible(e, *other) {
				continue
			}
			survivor, absorbed := e, *other
			if rankEntity(*other) > rankEntity(e) {
				survivor, absorbed = *other, e
			}
			mergedID, err := graph.MergeEntities(ctx, absorbed.ID, survivor.ID)
			if err != nil {
				return nil, fmt.Errorf("merger: semantic dedup: merge: %w", err)
			}
			tombstoned[absorbed.ID] = true
			result[absorbed.ID] = mergedID
			if absorbed.ID == e.ID {
				break
			}
		}
	}
	return result, nil
}
