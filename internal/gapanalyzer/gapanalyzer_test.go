package gapanalyzer_test

import (
	"testing"

	"github.com/webintel/webintel/internal/gapanalyzer"
	"github.com/webintel/webintel/pkg/store"
)

func TestAnalyze_FullyComplete(t *testing.T) {
	e := store.Entity{
		ID:   "e1",
		Name: "Acme Corp",
		Kind: "company",
		Data: map[string]any{
			"industry":    "software",
			"founded":     "1990",
			"website":     "https://acme.com",
			"locations":   []any{"Seattle"},
			"key_persons": []any{"Jane Doe"},
		},
	}
	report := gapanalyzer.Analyze(e)
	if report.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0", report.Completeness)
	}
	if len(report.MissingFields) != 0 {
		t.Errorf("MissingFields = %v, want none", report.MissingFields)
	}
}

func TestAnalyze_PartialCompany(t *testing.T) {
	e := store.Entity{
		ID:   "e1",
		Name: "Acme Corp",
		Kind: "company",
		Data: map[string]any{
			"industry": "software",
		},
	}
	report := gapanalyzer.Analyze(e)
	if report.Completeness != 0.2 {
		t.Errorf("Completeness = %v, want 0.2", report.Completeness)
	}
	if len(report.MissingFields) != 4 {
		t.Fatalf("MissingFields = %v, want 4 entries", report.MissingFields)
	}
	for _, m := range report.MissingFields {
		if len(m.Queries) != 2 {
			t.Errorf("field %q queries = %v, want 2 templates", m.Field, m.Queries)
		}
	}
}

func TestAnalyze_PersonKind(t *testing.T) {
	e := store.Entity{ID: "e2", Name: "Jane Doe", Kind: "person", Data: map[string]any{}}
	report := gapanalyzer.Analyze(e)
	if report.Completeness != 0 {
		t.Errorf("Completeness = %v, want 0", report.Completeness)
	}
	want := map[string]bool{"title": true, "bio": true, "affiliation": true}
	if len(report.MissingFields) != len(want) {
		t.Fatalf("MissingFields = %v", report.MissingFields)
	}
	for _, m := range report.MissingFields {
		if !want[m.Field] {
			t.Errorf("unexpected missing field %q", m.Field)
		}
	}
}

func TestAnalyze_UnknownKindFallsBackToGeneric(t *testing.T) {
	e := store.Entity{ID: "e3", Name: "Mystery Thing", Kind: "widget", Data: map[string]any{}}
	report := gapanalyzer.Analyze(e)
	if len(report.ExpectedFields) != 1 || report.ExpectedFields[0] != "description" {
		t.Errorf("ExpectedFields = %v, want [description]", report.ExpectedFields)
	}
}

func TestAnalyze_EmptyValuesCountAsMissing(t *testing.T) {
	e := store.Entity{
		ID:   "e4",
		Name: "Acme Corp",
		Kind: "company",
		Data: map[string]any{
			"industry":    "",
			"founded":     "1990",
			"website":     "https://acme.com",
			"locations":   []any{},
			"key_persons": []any{"Jane Doe"},
		},
	}
	report := gapanalyzer.Analyze(e)
	missing := map[string]bool{}
	for _, m := range report.MissingFields {
		missing[m.Field] = true
	}
	if !missing["industry"] || !missing["locations"] {
		t.Errorf("expected industry and locations to be missing, got %v", report.MissingFields)
	}
}
