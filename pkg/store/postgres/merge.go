package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/pkg/store"
)

// MergeEntities implements the soft-merge algorithm of spec §4.9: it
// selects the survivor, merges fields/metadata, rewires relationships and
// intelligence from source to target (dropping duplicate rewrites), and
// tombstones the source. The transaction's atomicity ensures no partial
// rewiring (§4.6).
func (s *Store) MergeEntities(ctx context.Context, sourceID, targetID string) (string, error) {
	if sourceID == targetID {
		return "", fmt.Errorf("postgres: merge entities: source and target are the same id %q", sourceID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres: merge entities: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	src, err := getEntityTx(ctx, tx, sourceID)
	if err != nil || src == nil {
		return "", fmt.Errorf("postgres: merge entities: source entity missing: %w", err)
	}
	tgt, err := getEntityTx(ctx, tx, targetID)
	if err != nil || tgt == nil {
		return "", fmt.Errorf("postgres: merge entities: target entity missing: %w", err)
	}

	survivor, absorbed := selectSurvivor(*src, *tgt)

	merged := survivor
	if merged.Data == nil {
		merged.Data = map[string]any{}
	}
	for k, v := range absorbed.Data {
		if existing, ok := merged.Data[k]; !ok || isEmptyValue(existing) {
			merged.Data[k] = v
		}
	}
	if merged.Metadata == nil {
		merged.Metadata = map[string]any{}
	}
	history, _ := merged.Metadata["merged_from"].([]any)
	history = append(history, map[string]any{"id": absorbed.ID, "name": absorbed.Name, "kind": absorbed.Kind})
	merged.Metadata["merged_from"] = history
	if absorbed.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = absorbed.LastSeen
	}

	// Rewire relationships touching the absorbed entity, dropping any
	// rewrite that would duplicate an existing row.
	rows, err := tx.Query(ctx, `
		SELECT id, source_id, target_id, source_type, target_type, rel_type, metadata, created_at
		FROM relationships WHERE source_id = $1 OR target_id = $1`, absorbed.ID)
	if err != nil {
		return "", fmt.Errorf("postgres: merge entities: list relationships: %w", err)
	}
	rels, err := pgx.CollectRows(rows, scanRel)
	if err != nil {
		return "", fmt.Errorf("postgres: merge entities: scan relationships: %w", err)
	}
	for _, rel := range rels {
		rewired := rel
		if rel.SourceID == absorbed.ID {
			rewired.SourceID = merged.ID
		}
		if rel.TargetID == absorbed.ID {
			rewired.TargetID = merged.ID
		}
		if _, err := tx.Exec(ctx, `DELETE FROM relationships WHERE id = $1`, rel.ID); err != nil {
			return "", fmt.Errorf("postgres: merge entities: delete old relationship: %w", err)
		}
		if err := upsertRelationshipTx(ctx, tx, rewired); err != nil {
			return "", fmt.Errorf("postgres: merge entities: rewire relationship: %w", err)
		}
	}

	// Rewire intelligence and page-mention ownership.
	if _, err := tx.Exec(ctx, `UPDATE intelligence SET entity_id = $1 WHERE entity_id = $2`, merged.ID, absorbed.ID); err != nil {
		return "", fmt.Errorf("postgres: merge entities: rewire intelligence: %w", err)
	}

	// Tombstone the absorbed entity.
	if absorbed.Metadata == nil {
		absorbed.Metadata = map[string]any{}
	}
	absorbed.Metadata["merged_into"] = merged.ID
	absorbed.Metadata["merged_at"] = time.Now()
	absorbed.Metadata["merge_reason"] = "soft_merge"
	absorbedMeta, err := json.Marshal(absorbed.Metadata)
	if err != nil {
		return "", fmt.Errorf("postgres: merge entities: marshal tombstone metadata: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE entities SET metadata = $2, updated_at = now() WHERE id = $1`, absorbed.ID, absorbedMeta); err != nil {
		return "", fmt.Errorf("postgres: merge entities: tombstone source: %w", err)
	}

	mergedData, err := json.Marshal(merged.Data)
	if err != nil {
		return "", fmt.Errorf("postgres: merge entities: marshal merged data: %w", err)
	}
	mergedMeta, err := json.Marshal(merged.Metadata)
	if err != nil {
		return "", fmt.Errorf("postgres: merge entities: marshal merged metadata: %w", err)
	}
	const updQ = `
		UPDATE entities SET name = $2, kind = $3, data = $4, metadata = $5, last_seen = $6, updated_at = now()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, updQ, merged.ID, merged.Name, merged.Kind, mergedData, mergedMeta, merged.LastSeen); err != nil {
		return "", fmt.Errorf("postgres: merge entities: save survivor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("postgres: merge entities: commit: %w", err)
	}
	return merged.ID, nil
}

func getEntityTx(ctx context.Context, tx pgx.Tx, id string) (*store.Entity, error) {
	q := fmt.Sprintf(`SELECT %s FROM entities WHERE id = $1`, selectEntityCols)
	rows, err := tx.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	e, err := scanEntity(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
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

// kindSpecificity mirrors internal/merger's specificity ranks.
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
