// Package postgres provides a PostgreSQL + pgvector backed implementation
// of the pkg/store interfaces: the Relational Store (pages, intel,
// entities, relationships, links, tasks) and the Vector Index.
//
// All tables share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs
// it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	db, err := postgres.NewStore(ctx, dsn, 384)
//	if err != nil { … }
//	defer db.Close()
//
//	_ = db.SavePage(ctx, page, content)
//	_ = db.SaveEntity(ctx, entity)
//	hits, _ := db.Search(ctx, queryVec, 10, store.VectorFilter{})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPages = `
CREATE TABLE IF NOT EXISTS pages (
    id                TEXT         PRIMARY KEY,
    url               TEXT         NOT NULL UNIQUE,
    domain_key        TEXT         NOT NULL DEFAULT '',
    depth             INT          NOT NULL DEFAULT 0,
    priority_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
    page_type         TEXT         NOT NULL DEFAULT '',
    last_fetch_status TEXT         NOT NULL DEFAULT '',
    last_fetched_at   TIMESTAMPTZ,
    text_length       INT          NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pages_domain_key ON pages (domain_key);
CREATE INDEX IF NOT EXISTS idx_pages_page_type ON pages (page_type);

CREATE TABLE IF NOT EXISTS page_contents (
    id          TEXT  PRIMARY KEY REFERENCES pages (id) ON DELETE CASCADE,
    raw_html    TEXT  NOT NULL DEFAULT '',
    clean_text  TEXT  NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}',
    extraction  JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_page_contents_fts
    ON page_contents USING GIN (to_tsvector('english', clean_text));
`

const ddlEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL,
    kind        TEXT         NOT NULL DEFAULT '',
    data        JSONB        NOT NULL DEFAULT '{}',
    metadata    JSONB        NOT NULL DEFAULT '{}',
    last_seen   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities (lower(name));
CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities (kind);
CREATE INDEX IF NOT EXISTS idx_entities_identity ON entities (lower(name), kind);

CREATE TABLE IF NOT EXISTS relationships (
    id          TEXT         PRIMARY KEY,
    source_id   TEXT         NOT NULL,
    target_id   TEXT         NOT NULL,
    source_type TEXT         NOT NULL DEFAULT '',
    target_type TEXT         NOT NULL DEFAULT '',
    rel_type    TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (source_id, target_id, rel_type)
);

CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships (source_id);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships (target_id);
CREATE INDEX IF NOT EXISTS idx_rel_type ON relationships (rel_type);
`

const ddlIntel = `
CREATE TABLE IF NOT EXISTS intelligence (
    id          TEXT         PRIMARY KEY,
    page_id     TEXT         NOT NULL,
    entity_id   TEXT         NOT NULL,
    confidence  INT          NOT NULL DEFAULT 0,
    payload     JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_intel_entity ON intelligence (entity_id);
CREATE INDEX IF NOT EXISTS idx_intel_page ON intelligence (page_id);
CREATE INDEX IF NOT EXISTS idx_intel_fts
    ON intelligence USING GIN (to_tsvector('english', payload::text));
`

const ddlTasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id            TEXT         PRIMARY KEY,
    type          TEXT         NOT NULL,
    status        TEXT         NOT NULL DEFAULT 'pending',
    priority      INT          NOT NULL DEFAULT 0,
    params        JSONB        NOT NULL DEFAULT '{}',
    progress      DOUBLE PRECISION NOT NULL DEFAULT 0,
    progress_msg  TEXT         NOT NULL DEFAULT '',
    result        JSONB        NOT NULL DEFAULT '{}',
    error         TEXT         NOT NULL DEFAULT '',
    cancelled     BOOLEAN      NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_priority
    ON tasks (status, priority DESC, created_at ASC);
`

// ddlVectors returns the vector-index DDL with D substituted into the
// column type, per the per-database dimension contract of spec §6.
func ddlVectors(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS vector_points (
    id           TEXT         PRIMARY KEY,
    kind         TEXT         NOT NULL,
    url          TEXT         NOT NULL DEFAULT '',
    entity       TEXT         NOT NULL DEFAULT '',
    entity_type  TEXT         NOT NULL DEFAULT '',
    sql_page_id   TEXT        NOT NULL DEFAULT '',
    sql_intel_id  TEXT        NOT NULL DEFAULT '',
    sql_entity_id TEXT        NOT NULL DEFAULT '',
    chunk_index  INT          NOT NULL DEFAULT 0,
    text         TEXT         NOT NULL DEFAULT '',
    embedding    vector(%d)   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vector_points_kind ON vector_points (kind);
CREATE INDEX IF NOT EXISTS idx_vector_points_url ON vector_points (url);
CREATE INDEX IF NOT EXISTS idx_vector_points_entity ON vector_points (entity);
CREATE INDEX IF NOT EXISTS idx_vector_points_embedding
    ON vector_points USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. Idempotent; safe to call on every application start. Migrations
// are forward-only, per spec §6.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	for _, stmt := range []string{ddlPages, ddlEntities, ddlIntel, ddlTasks, ddlVectors(dimensions)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
