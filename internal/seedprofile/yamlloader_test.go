package seedprofile_test

import (
	"context"
	"strings"
	"testing"

	"github.com/webintel/webintel/internal/seedprofile"
)

const validYAML = `
investigation:
  name: "Q3 diligence sweep"
  description: "Background check on Acme Corporation"
profiles:
  - name: "Acme Corporation"
    kind: company
    official_domains: ["acme.example"]
    seed_urls: ["https://acme.example", "https://en.wikipedia.org/wiki/Acme"]
    limits:
      max_depth: 2
      score_threshold: 60
  - name: "Jane Doe"
    kind: person
    location_hint: "Portland, OR"
    seed_urls: ["https://linkedin.com/in/janedoe"]
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	file, err := seedprofile.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}
	if file.Investigation.Name != "Q3 diligence sweep" {
		t.Fatalf("Investigation.Name = %q, want %q", file.Investigation.Name, "Q3 diligence sweep")
	}
	if len(file.Profiles) != 2 {
		t.Fatalf("len(Profiles) = %d, want 2", len(file.Profiles))
	}
	acme := file.Profiles[0]
	if acme.Kind != "company" || len(acme.OfficialDomains) != 1 || acme.OfficialDomains[0] != "acme.example" {
		t.Errorf("unexpected Acme profile: %+v", acme)
	}
	if acme.Limits.MaxDepth != 2 || acme.Limits.ScoreThreshold != 60 {
		t.Errorf("unexpected Acme limits: %+v", acme.Limits)
	}
}

func TestLoadFromReader_RejectsUnknownField(t *testing.T) {
	t.Parallel()

	const badYAML = `
investigation:
  name: "test"
profiles:
  - name: "Acme"
    seed_urls: ["https://acme.example"]
    bogus_field: true
`
	if _, err := seedprofile.LoadFromReader(strings.NewReader(badYAML)); err == nil {
		t.Fatal("expected an error for an unknown field, got nil")
	}
}

func TestLoadFromReader_RejectsMissingSeedURLs(t *testing.T) {
	t.Parallel()

	const badYAML = `
investigation:
  name: "test"
profiles:
  - name: "Acme"
    kind: company
`
	if _, err := seedprofile.LoadFromReader(strings.NewReader(badYAML)); err == nil {
		t.Fatal("expected an error for a profile with no seed_urls, got nil")
	}
}

func TestLoadFromReader_RejectsMissingName(t *testing.T) {
	t.Parallel()

	const badYAML = `
investigation:
  name: "test"
profiles:
  - seed_urls: ["https://acme.example"]
`
	if _, err := seedprofile.LoadFromReader(strings.NewReader(badYAML)); err == nil {
		t.Fatal("expected an error for a profile with no name, got nil")
	}
}

func TestImport(t *testing.T) {
	t.Parallel()

	file, err := seedprofile.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}

	s := seedprofile.NewMemStore()
	n, err := seedprofile.Import(context.Background(), s, file)
	if err != nil {
		t.Fatalf("Import: unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("Import: expected 2, got %d", n)
	}

	all, _ := s.List(context.Background(), seedprofile.ListOptions{})
	if len(all) != 2 {
		t.Fatalf("expected 2 profiles in store, got %d", len(all))
	}
}

func TestProfile_ToProfileAndToConfig(t *testing.T) {
	t.Parallel()

	useLLM := true
	p := seedprofile.Profile{
		Name:            "Acme Corporation",
		Kind:            "company",
		Aliases:         []string{"Acme Corp"},
		OfficialDomains: []string{"acme.example"},
		SeedURLs:        []string{"https://acme.example"},
		Limits: seedprofile.Limits{
			MaxDepth:       2,
			ScoreThreshold: 60,
			UseLLMLinkRank: &useLLM,
		},
	}

	up := p.ToProfile()
	if up.Name != p.Name || up.Kind != p.Kind || len(up.OfficialDomains) != 1 {
		t.Errorf("ToProfile() = %+v, unexpected", up)
	}

	cfg := p.ToConfig()
	if cfg.MaxDepth != 2 {
		t.Errorf("ToConfig().MaxDepth = %d, want 2", cfg.MaxDepth)
	}
	if cfg.ScoreThreshold != 60 {
		t.Errorf("ToConfig().ScoreThreshold = %d, want 60", cfg.ScoreThreshold)
	}
	if !cfg.UseLLMLinkRank {
		t.Error("ToConfig().UseLLMLinkRank = false, want true")
	}
	// Unset fields fall back to the Explorer's own defaults.
	if cfg.MaxTotalPages == 0 || cfg.MaxPagesPerDomain == 0 {
		t.Errorf("ToConfig() left a zero-value default field: %+v", cfg)
	}
}

func TestProfile_ToConfig_EmptyLimitsUseExplorerDefaults(t *testing.T) {
	t.Parallel()

	p := seedprofile.Profile{Name: "Acme Corporation", SeedURLs: []string{"https://acme.example"}}
	cfg := p.ToConfig()
	if !cfg.UseLLMLinkRank {
		t.Error("expected UseLLMLinkRank to keep the Explorer default (true) when unset")
	}
	if cfg.MaxDepth == 0 {
		t.Error("expected MaxDepth to keep the Explorer default when unset")
	}
}
