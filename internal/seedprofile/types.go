// Package seedprofile provides pre-run investigation-target management for
// webintel.
//
// An operator defines the Entity profile and seed URLs for an investigation
// before the Explorer starts: its canonical name, kind, optional location
// hint, known aliases, and official-domain allowlist, plus the seed URL list
// and crawl limits to hand to the Explorer. Profiles defined here can be
// loaded into a run via the store at startup.
//
// Supported input format:
//   - Native YAML investigation files ([LoadFile], [LoadFromReader])
//
// All store operations are safe for concurrent use.
package seedprofile

import (
	"github.com/webintel/webintel/internal/explorer"
	"github.com/webintel/webintel/pkg/urlscore"
)

// Profile is the declarative format for defining an investigation target
// outside of a running Explore call. It is used for pre-run setup via YAML
// config and is translated into an [urlscore.Profile] + [explorer.Config]
// pair at run time.
type Profile struct {
	// ID is a unique identifier. Auto-generated if empty during import.
	ID string `yaml:"id" json:"id"`

	// Name is the entity's canonical display name.
	Name string `yaml:"name" json:"name"`

	// Kind classifies the entity (person, company, org, news, ...).
	Kind string `yaml:"kind" json:"kind"`

	// LocationHint narrows the search for a common name (e.g. "Portland, OR").
	LocationHint string `yaml:"location_hint,omitempty" json:"location_hint,omitempty"`

	// Aliases lists alternate names the entity is known by.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`

	// OfficialDomains lists domains that are authoritative sources for this
	// entity (boosted to the maximum score by the URL Scorer).
	OfficialDomains []string `yaml:"official_domains,omitempty" json:"official_domains,omitempty"`

	// SeedURLs lists the URLs the Explorer pushes onto the Frontier at
	// depth 0.
	SeedURLs []string `yaml:"seed_urls" json:"seed_urls"`

	// Limits bounds the Explorer's crawl for this profile.
	Limits Limits `yaml:"limits,omitempty" json:"limits,omitempty"`

	// Tags are searchable labels for categorization.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Limits mirrors [explorer.Config]'s bounds in YAML-friendly form. A zero
// value for any field means "use the Explorer's default" (see [ToConfig]).
type Limits struct {
	MaxPagesPerDomain int  `yaml:"max_pages_per_domain,omitempty" json:"max_pages_per_domain,omitempty"`
	MaxTotalPages     int  `yaml:"max_total_pages,omitempty" json:"max_total_pages,omitempty"`
	MaxDepth          int  `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`
	ScoreThreshold    int   `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty"`
	UseLLMLinkRank    *bool `yaml:"use_llm_link_rank,omitempty" json:"use_llm_link_rank,omitempty"`
}

// ToProfile converts p into the minimal [urlscore.Profile] view the URL
// Scorer and RAG Answerer need.
func (p Profile) ToProfile() urlscore.Profile {
	return urlscore.Profile{
		Name:            p.Name,
		Aliases:         p.Aliases,
		Kind:            p.Kind,
		OfficialDomains: p.OfficialDomains,
	}
}

// ToConfig converts p.Limits into an [explorer.Config], starting from
// [explorer.DefaultConfig] and overriding any field the profile set
// explicitly (a zero Limits value leaves every Explorer default in place).
func (p Profile) ToConfig() explorer.Config {
	cfg := explorer.DefaultConfig()
	if p.Limits.MaxPagesPerDomain > 0 {
		cfg.MaxPagesPerDomain = p.Limits.MaxPagesPerDomain
	}
	if p.Limits.MaxTotalPages > 0 {
		cfg.MaxTotalPages = p.Limits.MaxTotalPages
	}
	if p.Limits.MaxDepth > 0 {
		cfg.MaxDepth = p.Limits.MaxDepth
	}
	if p.Limits.ScoreThreshold > 0 {
		cfg.ScoreThreshold = p.Limits.ScoreThreshold
	}
	if p.Limits.UseLLMLinkRank != nil {
		cfg.UseLLMLinkRank = *p.Limits.UseLLMLinkRank
	}
	return cfg
}
