package llmclient

import "testing"

func TestValidateIntelPayload_DropsUnknownAndMisshapen(t *testing.T) {
	raw := map[string]any{
		"basic_info":  map[string]any{"founded": "1990"},
		"persons":     []any{map[string]any{"name": "Jane"}},
		"jobs":        "not an array",
		"unknown_key": "drop me",
	}
	clean := validateIntelPayload(raw)

	if _, ok := clean["basic_info"]; !ok {
		t.Error("expected basic_info to survive")
	}
	if _, ok := clean["persons"]; !ok {
		t.Error("expected persons to survive")
	}
	if _, ok := clean["jobs"]; ok {
		t.Error("expected misshapen jobs to be dropped")
	}
	if _, ok := clean["unknown_key"]; ok {
		t.Error("expected unknown_key to be dropped")
	}
}

func TestValidateIntelPayload_EmptySectionsOmitted(t *testing.T) {
	raw := map[string]any{
		"basic_info": map[string]any{},
		"persons":    []any{},
	}
	clean := validateIntelPayload(raw)
	if len(clean) != 0 {
		t.Errorf("clean = %v, want empty sections omitted entirely", clean)
	}
}

func TestSalvageIntelSections_PullsKnownPathsFromProseWrappedReply(t *testing.T) {
	reply := `Sure, here is what I found: {"basic_info": {"founded": "1990"}, "persons": [{"name": "Jane"}], "not_a_section": "ignored"}`
	out := salvageIntelSections(reply)

	if _, ok := out["basic_info"]; !ok {
		t.Error("expected basic_info to be salvaged")
	}
	if _, ok := out["persons"]; !ok {
		t.Error("expected persons to be salvaged")
	}
	if _, ok := out["not_a_section"]; ok {
		t.Error("expected unrecognized keys not to be salvaged")
	}
}

func TestSalvageIntelSections_NoKnownPathsYieldsEmptyMap(t *testing.T) {
	out := salvageIntelSections("not json at all")
	if len(out) != 0 {
		t.Errorf("out = %v, want empty map", out)
	}
}
