package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/webintel/webintel/pkg/store"
)

// Upsert stores vec under id with payload.
func (s *Store) Upsert(ctx context.Context, id string, vec []float32, payload store.VectorPayload) error {
	v := pgvector.NewVector(vec)
	const q = `
		INSERT INTO vector_points
		    (id, kind, url, entity, entity_type, sql_page_id, sql_intel_id, sql_entity_id, chunk_index, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
		    kind          = EXCLUDED.kind,
		    url           = EXCLUDED.url,
		    entity        = EXCLUDED.entity,
		    entity_type   = EXCLUDED.entity_type,
		    sql_page_id   = EXCLUDED.sql_page_id,
		    sql_intel_id  = EXCLUDED.sql_intel_id,
		    sql_entity_id = EXCLUDED.sql_entity_id,
		    chunk_index   = EXCLUDED.chunk_index,
		    text          = EXCLUDED.text,
		    embedding     = EXCLUDED.embedding`
	_, err := s.pool.Exec(ctx, q, id, payload.Kind, payload.URL, payload.Entity, payload.EntityType,
		payload.SQLPageID, payload.SQLIntelID, payload.SQLEntityID, payload.ChunkIndex, payload.Text, v)
	if err != nil {
		return fmt.Errorf("postgres: vector upsert: %w", err)
	}
	return nil
}

// Search returns the topK points nearest to vec by cosine similarity,
// honoring filter.
func (s *Store) Search(ctx context.Context, vec []float32, topK int, filter store.VectorFilter) ([]store.VectorHit, error) {
	queryVec := pgvector.NewVector(vec)
	args := []any{queryVec}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+next(string(filter.Kind)))
	}
	if filter.URL != "" {
		conditions = append(conditions, "url = "+next(filter.URL))
	}
	if filter.Entity != "" {
		conditions = append(conditions, "entity = "+next(filter.Entity))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	if topK <= 0 {
		topK = 10
	}
	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, kind, url, entity, entity_type, sql_page_id, sql_intel_id, sql_entity_id,
		       chunk_index, text, embedding, 1 - (embedding <=> $1) AS score
		FROM vector_points
		%s
		ORDER BY embedding <=> $1
		LIMIT %s`, where, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.VectorHit, error) {
		var (
			h   store.VectorHit
			v   pgvector.Vector
			knd string
		)
		err := row.Scan(&h.ID, &knd, &h.Payload.URL, &h.Payload.Entity, &h.Payload.EntityType,
			&h.Payload.SQLPageID, &h.Payload.SQLIntelID, &h.Payload.SQLEntityID,
			&h.Payload.ChunkIndex, &h.Payload.Text, &v, &h.Score)
		if err != nil {
			return h, err
		}
		h.Payload.Kind = store.VectorKind(knd)
		h.Vector = v.Slice()
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: scan: %w", err)
	}
	if hits == nil {
		hits = []store.VectorHit{}
	}
	return hits, nil
}

// Dimensions reports the configured vector dimension D.
func (s *Store) Dimensions() int { return s.dimensions }
