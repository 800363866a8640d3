package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/pkg/store"
)

// SavePage upserts page and content in one transaction.
func (s *Store) SavePage(ctx context.Context, page store.Page, content store.PageContent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save page: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const pageQ = `
		INSERT INTO pages
		    (id, url, domain_key, depth, priority_score, page_type,
		     last_fetch_status, last_fetched_at, text_length)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    domain_key        = EXCLUDED.domain_key,
		    depth             = EXCLUDED.depth,
		    priority_score    = EXCLUDED.priority_score,
		    page_type         = EXCLUDED.page_type,
		    last_fetch_status = EXCLUDED.last_fetch_status,
		    last_fetched_at   = EXCLUDED.last_fetched_at,
		    text_length       = EXCLUDED.text_length,
		    updated_at        = now()`

	if _, err := tx.Exec(ctx, pageQ, page.ID, page.URL, page.DomainKey, page.Depth,
		page.PriorityScore, page.PageType, page.LastFetchStatus, nullableTime(page.LastFetchedAt), page.TextLength); err != nil {
		return fmt.Errorf("postgres: save page: %w", err)
	}

	meta, err := json.Marshal(content.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: save page: marshal metadata: %w", err)
	}
	extraction, err := json.Marshal(content.Extraction)
	if err != nil {
		return fmt.Errorf("postgres: save page: marshal extraction: %w", err)
	}

	const contentQ = `
		INSERT INTO page_contents (id, raw_html, clean_text, metadata, extraction)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    raw_html   = EXCLUDED.raw_html,
		    clean_text = EXCLUDED.clean_text,
		    metadata   = EXCLUDED.metadata,
		    extraction = EXCLUDED.extraction`

	if _, err := tx.Exec(ctx, contentQ, page.ID, content.RawHTML, content.CleanText, meta, extraction); err != nil {
		return fmt.Errorf("postgres: save page content: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save page: commit: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

const selectPageCols = `
	p.id, p.url, p.domain_key, p.depth, p.priority_score, p.page_type,
	p.last_fetch_status, p.last_fetched_at, p.text_length, p.created_at, p.updated_at,
	c.raw_html, c.clean_text, c.metadata, c.extraction`

func scanPage(row pgx.CollectableRow) (store.Page, store.PageContent, error) {
	var (
		p          store.Page
		c          store.PageContent
		metaRaw    []byte
		extraction []byte
		lastFetch  *time.Time
	)
	err := row.Scan(&p.ID, &p.URL, &p.DomainKey, &p.Depth, &p.PriorityScore, &p.PageType,
		&p.LastFetchStatus, &lastFetch, &p.TextLength, &p.CreatedAt, &p.UpdatedAt,
		&c.RawHTML, &c.CleanText, &metaRaw, &extraction)
	if err != nil {
		return p, c, err
	}
	if lastFetch != nil {
		p.LastFetchedAt = *lastFetch
	}
	c.ID = p.ID
	_ = json.Unmarshal(metaRaw, &c.Metadata)
	_ = json.Unmarshal(extraction, &c.Extraction)
	return p, c, nil
}

// GetByURL returns the Page and PageContent for url.
func (s *Store) GetByURL(ctx context.Context, url string) (*store.Page, *store.PageContent, error) {
	return s.getPage(ctx, "p.url = $1", url)
}

// GetByID returns the Page and PageContent for id.
func (s *Store) GetByID(ctx context.Context, id string) (*store.Page, *store.PageContent, error) {
	return s.getPage(ctx, "p.id = $1", id)
}

func (s *Store) getPage(ctx context.Context, where string, arg any) (*store.Page, *store.PageContent, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM pages p JOIN page_contents c ON c.id = p.id
		WHERE %s`, selectPageCols, where)

	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: get page: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil, nil
	}
	p, c, err := scanPage(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: get page: scan: %w", err)
	}
	return &p, &c, nil
}

// List returns pages matching filter.
func (s *Store) List(ctx context.Context, filter store.PageFilter, limit int) ([]store.Page, error) {
	var conditions []string
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.DomainKey != "" {
		conditions = append(conditions, "domain_key = "+next(filter.DomainKey))
	}
	if filter.PageType != "" {
		conditions = append(conditions, "page_type = "+next(filter.PageType))
	}
	if filter.MinDepth > 0 {
		conditions = append(conditions, "depth >= "+next(filter.MinDepth))
	}
	if filter.MaxDepth > 0 {
		conditions = append(conditions, "depth <= "+next(filter.MaxDepth))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT id, url, domain_key, depth, priority_score, page_type,
		       last_fetch_status, last_fetched_at, text_length, created_at, updated_at
		FROM pages
		%s
		ORDER BY updated_at DESC
		LIMIT $%d`, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pages: %w", err)
	}
	pages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Page, error) {
		var p store.Page
		var lastFetch *time.Time
		err := row.Scan(&p.ID, &p.URL, &p.DomainKey, &p.Depth, &p.PriorityScore, &p.PageType,
			&p.LastFetchStatus, &lastFetch, &p.TextLength, &p.CreatedAt, &p.UpdatedAt)
		if lastFetch != nil {
			p.LastFetchedAt = *lastFetch
		}
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list pages: scan: %w", err)
	}
	if pages == nil {
		pages = []store.Page{}
	}
	return pages, nil
}

// MarkVisited records a fetch attempt's outcome.
func (s *Store) MarkVisited(ctx context.Context, pageID string, status string, at time.Time) error {
	const q = `UPDATE pages SET last_fetch_status = $2, last_fetched_at = $3, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, pageID, status, at); err != nil {
		return fmt.Errorf("postgres: mark visited: %w", err)
	}
	return nil
}
