package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/pkg/store"
)

// Save persists intel and links it to its source page and primary entity.
func (s *Store) Save(ctx context.Context, intel store.Intelligence) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save intel: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payload, err := json.Marshal(intel.Payload)
	if err != nil {
		return fmt.Errorf("postgres: save intel: marshal payload: %w", err)
	}

	const intelQ = `
		INSERT INTO intelligence (id, page_id, entity_id, confidence, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	if _, err := tx.Exec(ctx, intelQ, intel.ID, intel.PageID, intel.EntityID, intel.Confidence, payload); err != nil {
		return fmt.Errorf("postgres: save intel: %w", err)
	}

	if err := upsertRelationshipTx(ctx, tx, store.Relationship{
		SourceID: intel.PageID, TargetID: intel.ID,
		SourceType: "page", TargetType: "intelligence", RelType: "has_intel",
	}); err != nil {
		return fmt.Errorf("postgres: save intel: has_intel relationship: %w", err)
	}
	if err := upsertRelationshipTx(ctx, tx, store.Relationship{
		SourceID: intel.PageID, TargetID: intel.EntityID,
		SourceType: "page", TargetType: "entity", RelType: "mentions_entity",
	}); err != nil {
		return fmt.Errorf("postgres: save intel: mentions_entity relationship: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save intel: commit: %w", err)
	}
	return nil
}

func scanIntel(row pgx.CollectableRow) (store.Intelligence, error) {
	var i store.Intelligence
	var payload []byte
	if err := row.Scan(&i.ID, &i.PageID, &i.EntityID, &i.Confidence, &payload, &i.CreatedAt); err != nil {
		return i, err
	}
	_ = json.Unmarshal(payload, &i.Payload)
	return i, nil
}

const selectIntelCols = `id, page_id, entity_id, confidence, payload, created_at`

// SearchByEntityName returns Intelligence rows for entities whose name
// matches query.
func (s *Store) SearchByEntityName(ctx context.Context, query string, limit int) ([]store.Intelligence, error) {
	if limit <= 0 {
		limit = 25
	}
	q := fmt.Sprintf(`
		SELECT i.%s
		FROM intelligence i JOIN entities e ON e.id = i.entity_id
		WHERE e.name ILIKE '%%' || $1 || '%%'
		ORDER BY i.created_at DESC
		LIMIT $2`, "id, page_id, entity_id, confidence, payload, created_at")
	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search intel by entity name: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanIntel)
	if err != nil {
		return nil, fmt.Errorf("postgres: search intel by entity name: scan: %w", err)
	}
	if out == nil {
		out = []store.Intelligence{}
	}
	return out, nil
}

// SearchByText returns Intelligence rows whose payload contains query as
// a raw-text substring.
func (s *Store) SearchByText(ctx context.Context, query string, limit int) ([]store.Intelligence, error) {
	if limit <= 0 {
		limit = 25
	}
	q := fmt.Sprintf(`
		SELECT %s FROM intelligence
		WHERE payload::text ILIKE '%%' || $1 || '%%'
		ORDER BY created_at DESC
		LIMIT $2`, selectIntelCols)
	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search intel by text: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanIntel)
	if err != nil {
		return nil, fmt.Errorf("postgres: search intel by text: scan: %w", err)
	}
	if out == nil {
		out = []store.Intelligence{}
	}
	return out, nil
}

// GetByID returns the Intelligence row with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (*store.Intelligence, error) {
	q := fmt.Sprintf(`SELECT %s FROM intelligence WHERE id = $1`, selectIntelCols)
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get intel: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	i, err := scanIntel(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: get intel: scan: %w", err)
	}
	return &i, nil
}

// ListByEntity returns all Intelligence rows for entityID.
func (s *Store) ListByEntity(ctx context.Context, entityID string) ([]store.Intelligence, error) {
	q := fmt.Sprintf(`SELECT %s FROM intelligence WHERE entity_id = $1 ORDER BY created_at DESC`, selectIntelCols)
	rows, err := s.pool.Query(ctx, q, entityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intel by entity: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanIntel)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intel by entity: scan: %w", err)
	}
	if out == nil {
		out = []store.Intelligence{}
	}
	return out, nil
}
