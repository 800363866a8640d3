package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/pkg/store"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SaveEntity upserts entity by id.
func (s *Store) SaveEntity(ctx context.Context, entity store.Entity) error {
	data, err := json.Marshal(entity.Data)
	if err != nil {
		return fmt.Errorf("postgres: save entity: marshal data: %w", err)
	}
	meta, err := json.Marshal(entity.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: save entity: marshal metadata: %w", err)
	}
	const q = `
		INSERT INTO entities (id, name, kind, data, metadata, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    name      = EXCLUDED.name,
		    kind      = EXCLUDED.kind,
		    data      = EXCLUDED.data,
		    metadata  = EXCLUDED.metadata,
		    last_seen = EXCLUDED.last_seen,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, entity.ID, entity.Name, entity.Kind, data, meta, entity.LastSeen); err != nil {
		return fmt.Errorf("postgres: save entity: %w", err)
	}
	return nil
}

const selectEntityCols = `id, name, kind, data, metadata, last_seen, created_at, updated_at`

func scanEntity(row pgx.CollectableRow) (store.Entity, error) {
	var (
		e        store.Entity
		dataRaw  []byte
		metaRaw  []byte
	)
	err := row.Scan(&e.ID, &e.Name, &e.Kind, &dataRaw, &metaRaw, &e.LastSeen, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	_ = json.Unmarshal(dataRaw, &e.Data)
	_ = json.Unmarshal(metaRaw, &e.Metadata)
	return e, nil
}

// GetEntity retrieves an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (*store.Entity, error) {
	q := fmt.Sprintf(`SELECT %s FROM entities WHERE id = $1`, selectEntityCols)
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get entity: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	e, err := scanEntity(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: get entity: scan: %w", err)
	}
	return &e, nil
}

// FindByIdentity looks up a live entity by (canonical name, normalized
// kind).
func (s *Store) FindByIdentity(ctx context.Context, canonicalName, normalizedKind string) (*store.Entity, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM entities
		WHERE lower(name) = lower($1) AND kind = $2
		  AND metadata->>'merged_into' IS NULL`, selectEntityCols)
	rows, err := s.pool.Query(ctx, q, canonicalName, normalizedKind)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by identity: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	e, err := scanEntity(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by identity: scan: %w", err)
	}
	return &e, nil
}

// FindSimilar returns live entities whose name fuzzy-matches query
// (substring either direction, case-insensitive).
func (s *Store) FindSimilar(ctx context.Context, query string, limit int) ([]store.Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	q := fmt.Sprintf(`
		SELECT %s FROM entities
		WHERE metadata->>'merged_into' IS NULL
		  AND (name ILIKE '%%' || $1 || '%%' OR $1 ILIKE '%%' || name || '%%')
		ORDER BY name
		LIMIT $2`, selectEntityCols)
	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find similar: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("postgres: find similar: scan: %w", err)
	}
	if out == nil {
		out = []store.Entity{}
	}
	return out, nil
}

// Find returns entities matching filter.
func (s *Store) Find(ctx context.Context, filter store.EntityFilter) ([]store.Entity, error) {
	var conditions []string
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.IncludeTombstoned {
		conditions = append(conditions, "metadata->>'merged_into' IS NULL")
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+next(filter.Kind))
	}
	if filter.NameLike != "" {
		conditions = append(conditions, "name ILIKE '%' || "+next(filter.NameLike)+" || '%'")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	q := fmt.Sprintf(`SELECT %s FROM entities %s ORDER BY updated_at DESC`, selectEntityCols, where)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find entities: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("postgres: find entities: scan: %w", err)
	}
	if out == nil {
		out = []store.Entity{}
	}
	return out, nil
}

// SaveRelationship upserts rel, bumping occurrence_count and boosting
// confidence on repeat observation (§8 idempotent relationship upsert).
func (s *Store) SaveRelationship(ctx context.Context, rel store.Relationship) error {
	return upsertRelationshipTx(ctx, s.pool, rel)
}

func upsertRelationshipTx(ctx context.Context, db execer, rel store.Relationship) error {
	if rel.ID == "" {
		rel.ID = store.RelationshipID(rel.SourceID, rel.TargetID, rel.RelType)
	}
	if rel.Metadata == nil {
		rel.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(rel.Metadata)
	if err != nil {
		return fmt.Errorf("marshal relationship metadata: %w", err)
	}

	const q = `
		INSERT INTO relationships (id, source_id, target_id, source_type, target_type, rel_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, '{"occurrence_count": 1}'::jsonb || $7::jsonb)
		ON CONFLICT (source_id, target_id, rel_type) DO UPDATE SET
		    metadata = jsonb_set(
		        relationships.metadata || EXCLUDED.metadata,
		        '{occurrence_count}',
		        to_jsonb(COALESCE((relationships.metadata->>'occurrence_count')::int, 0) + 1)
		    ) || CASE WHEN jsonb_typeof(relationships.metadata->'confidence') = 'number'
		        THEN jsonb_build_object('confidence',
		            LEAST((relationships.metadata->>'confidence')::float8 * 0.9 + 0.1, 1.0))
		        ELSE '{}'::jsonb END`
	_, err = db.Exec(ctx, q, rel.ID, rel.SourceID, rel.TargetID, rel.SourceType, rel.TargetType, rel.RelType, meta)
	return err
}

const selectRelCols = `id, source_id, target_id, source_type, target_type, rel_type, metadata, created_at`

func scanRel(row pgx.CollectableRow) (store.Relationship, error) {
	var r store.Relationship
	var meta []byte
	err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.SourceType, &r.TargetType, &r.RelType, &meta, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	_ = json.Unmarshal(meta, &r.Metadata)
	return r, nil
}

// GetRelationships returns relationships touching id, filtered and
// directed per opts.
func (s *Store) GetRelationships(ctx context.Context, id string, opts ...store.RelQueryOpt) ([]store.Relationship, error) {
	relTypes, incoming, outgoing, limit := store.ResolveRelQueryOpts(opts)

	var conditions []string
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var directionClauses []string
	if outgoing {
		directionClauses = append(directionClauses, "source_id = "+next(id))
	}
	if incoming {
		directionClauses = append(directionClauses, "target_id = "+next(id))
	}
	conditions = append(conditions, "("+strings.Join(directionClauses, " OR ")+")")

	if len(relTypes) > 0 {
		placeholders := make([]string, len(relTypes))
		for i, t := range relTypes {
			placeholders[i] = next(t)
		}
		conditions = append(conditions, "rel_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = fmt.Sprintf("LIMIT $%d", len(args))
	}

	q := fmt.Sprintf(`SELECT %s FROM relationships WHERE %s %s`,
		selectRelCols, strings.Join(conditions, " AND "), limitClause)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get relationships: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRel)
	if err != nil {
		return nil, fmt.Errorf("postgres: get relationships: scan: %w", err)
	}
	if out == nil {
		out = []store.Relationship{}
	}
	return out, nil
}

// DeleteRelationship removes the edge (sourceID, targetID, relType).
func (s *Store) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) error {
	const q = `DELETE FROM relationships WHERE source_id = $1 AND target_id = $2 AND rel_type = $3`
	if _, err := s.pool.Exec(ctx, q, sourceID, targetID, relType); err != nil {
		return fmt.Errorf("postgres: delete relationship: %w", err)
	}
	return nil
}

// ConnectedComponents groups all live entities into clusters by
// relationship connectivity, ignoring edge direction.
func (s *Store) ConnectedComponents(ctx context.Context) ([][]string, error) {
	entities, err := s.Find(ctx, store.EntityFilter{})
	if err != nil {
		return nil, fmt.Errorf("postgres: connected components: list entities: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT source_id, target_id FROM relationships`)
	if err != nil {
		return nil, fmt.Errorf("postgres: connected components: list relationships: %w", err)
	}
	adjacency := map[string][]string{}
	type edge struct{ a, b string }
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (edge, error) {
		var e edge
		err := row.Scan(&e.a, &e.b)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connected components: scan edges: %w", err)
	}
	for _, e := range edges {
		adjacency[e.a] = append(adjacency[e.a], e.b)
		adjacency[e.b] = append(adjacency[e.b], e.a)
	}

	isEntity := map[string]bool{}
	for _, e := range entities {
		isEntity[e.ID] = true
	}

	visited := map[string]bool{}
	var components [][]string
	for _, e := range entities {
		if visited[e.ID] {
			continue
		}
		var component []string
		queue := []string{e.ID}
		visited[e.ID] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, n := range adjacency[cur] {
				if isEntity[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		components = append(components, component)
	}
	return components, nil
}
