package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/webintel/webintel/pkg/store"
)

// Compile-time interface checks.
var (
	_ store.PageStore   = (*Store)(nil)
	_ store.IntelStore  = (*Store)(nil)
	_ store.EntityGraph = (*Store)(nil)
	_ store.LinkStore   = (*Store)(nil)
	_ store.TaskStore   = (*Store)(nil)
	_ store.VectorIndex = (*Store)(nil)
)

// Store is the PostgreSQL + pgvector backed implementation of every
// pkg/store interface, sharing one connection pool.
//
// All operations are safe for concurrent use.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewStore establishes a connection pool to dsn, registers pgvector types
// on every connection, and runs [Migrate].
//
// dimensions must match the embedding model's output dimension (384
// typical per spec §4.5). Changing it after the first migration requires
// a manual schema change.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool, dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &Store{pool: pool, dimensions: dimensions}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
