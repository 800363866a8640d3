package postgres

import (
	"context"
	"fmt"

	"github.com/webintel/webintel/pkg/store"
)

// SaveBatch persists links. For each link whose ToURL resolves to a known
// Page, a page_link Relationship is emitted via graph.
func (s *Store) SaveBatch(ctx context.Context, links []store.Link, graph store.EntityGraph) error {
	for _, link := range links {
		var toID string
		err := s.pool.QueryRow(ctx, `SELECT id FROM pages WHERE url = $1`, link.ToURL).Scan(&toID)
		if err != nil {
			continue // target not yet a known page; link recorded only via the crawl itself
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
			return fmt.Errorf("postgres: save link batch: %w", err)
		}
	}
	return nil
}
