package knowledgetool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/webintel/webintel/pkg/store"
	"github.com/webintel/webintel/pkg/store/memstore"
)

func newTestStore(t *testing.T) *memstore.Store {
	t.Helper()
	return memstore.New()
}

func TestFindEntities_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveEntity(ctx, store.Entity{ID: "e1", Name: "Acme Corp", Kind: "company"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.SaveEntity(ctx, store.Entity{ID: "e2", Name: "Jane Doe", Kind: "person"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	handler := makeFindEntitiesHandler(s)
	out, err := handler(ctx, `{"kind":"company"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entities []store.Entity
	if err := json.Unmarshal([]byte(out), &entities); err != nil {
		t.Fatalf("failed to unmarshal: %v\noutput: %s", err, out)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].Name != "Acme Corp" {
		t.Errorf("name = %q, want Acme Corp", entities[0].Name)
	}
}

func TestGetRelationships_RequiresEntityID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	handler := makeGetRelationshipsHandler(s)

	_, err := handler(context.Background(), `{}`)
	if err == nil {
		t.Fatal("expected error for empty entity_id")
	}
}

func TestGetRelationships_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveEntity(ctx, store.Entity{ID: "e1", Name: "Acme Corp", Kind: "company"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.SaveEntity(ctx, store.Entity{ID: "e2", Name: "Jane Doe", Kind: "person"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.SaveRelationship(ctx, store.Relationship{
		SourceID: "e2", TargetID: "e1", SourceType: "entity", TargetType: "entity",
		RelType: "ceo_of",
	}); err != nil {
		t.Fatalf("SaveRelationship: %v", err)
	}

	handler := makeGetRelationshipsHandler(s)
	out, err := handler(ctx, `{"entity_id":"e2"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rels []store.Relationship
	if err := json.Unmarshal([]byte(out), &rels); err != nil {
		t.Fatalf("failed to unmarshal: %v\noutput: %s", err, out)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if rels[0].RelType != "ceo_of" {
		t.Errorf("rel_type = %q, want ceo_of", rels[0].RelType)
	}
}

func TestSearchIntel_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Save(ctx, store.Intelligence{
		ID: "i1", EntityID: "e1", PageID: "p1", Confidence: 90,
		Payload: map[string]any{"basic_info": "Acme Corp is a technology company"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	handler := makeSearchIntelHandler(s)
	out, err := handler(ctx, `{"query":"technology"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var findings []store.Intelligence
	if err := json.Unmarshal([]byte(out), &findings); err != nil {
		t.Fatalf("failed to unmarshal: %v\noutput: %s", err, out)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestSearchIntel_RequiresQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	handler := makeSearchIntelHandler(s)

	_, err := handler(context.Background(), `{"query":""}`)
	if err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestNewTools_ReturnsThreeTools(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	toolSet := NewTools(s, s)
	if len(toolSet) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(toolSet))
	}

	names := map[string]bool{}
	for _, tl := range toolSet {
		names[tl.Definition.Name] = true
	}
	for _, want := range []string{"find_entities", "get_relationships", "search_intel"} {
		if !names[want] {
			t.Errorf("missing tool %q", want)
		}
	}
}
