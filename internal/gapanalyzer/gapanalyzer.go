// Package gapanalyzer implements the Gap Analyzer: per-entity
// completeness scoring against an expected-field catalogue, plus
// suggested search-query templates for missing fields (spec §4.8).
package gapanalyzer

import (
	"fmt"

	"github.com/webintel/webintel/pkg/store"
)

// expectedFieldsByKind is the per-kind expected-field catalogue. Kinds
// not listed fall back to genericExpectedFields.
var expectedFieldsByKind = map[string][]string{
	"company":  {"industry", "founded", "website", "locations", "key_persons"},
	"org":      {"industry", "founded", "website", "locations", "key_persons"},
	"person":   {"title", "bio", "affiliation"},
	"product":  {"category", "release_date", "manufacturer"},
	"location": {"address", "country"},
	"event":    {"date", "location", "organizer"},
}

var genericExpectedFields = []string{"description"}

// MissingField names one absent expected field and a set of suggested
// search-query templates to fill it.
type MissingField struct {
	Field   string
	Queries []string
}

// Report is the Gap Analyzer's output for one Entity.
type Report struct {
	EntityID         string
	Completeness     float64
	MissingFields    []MissingField
	ExpectedFields   []string
	PresentFieldKeys []string
}

// expectedFieldsFor returns the expected-field catalogue for kind,
// falling back to the generic set when kind is unrecognized.
func expectedFieldsFor(kind string) []string {
	if fields, ok := expectedFieldsByKind[kind]; ok {
		return fields
	}
	return genericExpectedFields
}

// Analyze compares entity's known Data fields against its kind's
// expected-field catalogue and produces a completeness score and
// missing-field query suggestions.
func Analyze(entity store.Entity) Report {
	expected := expectedFieldsFor(entity.Kind)

	var present []string
	var missing []MissingField
	for _, field := range expected {
		value, ok := entity.Data[field]
		if ok && !isEmptyValue(value) {
			present = append(present, field)
			continue
		}
		missing = append(missing, MissingField{
			Field:   field,
			Queries: queryTemplates(entity.Name, entity.Kind, field),
		})
	}

	completeness := 1.0
	if len(expected) > 0 {
		completeness = float64(len(present)) / float64(len(expected))
	}

	return Report{
		EntityID:         entity.ID,
		Completeness:     completeness,
		MissingFields:    missing,
		ExpectedFields:   expected,
		PresentFieldKeys: present,
	}
}

// queryTemplates builds the "$name $field" and `"$name" "$entity_type"
// $field` search-query templates of spec §4.8.
func queryTemplates(name, kind, field string) []string {
	humanField := humanize(field)
	return []string{
		fmt.Sprintf("%s %s", name, humanField),
		fmt.Sprintf("%q %q %s", name, kind, humanField),
	}
}

func humanize(field string) string {
	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		if field[i] == '_' {
			out = append(out, ' ')
			continue
		}
		out = append(out, field[i])
	}
	return string(out)
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
