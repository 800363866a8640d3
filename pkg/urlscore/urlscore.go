// Package urlscore implements the URL Scorer: a pure scoring function
// that ranks a candidate outlink against a target entity profile, plus a
// concurrent-safe table of learned domain priors the Explorer tunes at
// runtime via BoostDomain.
package urlscore

import (
	"net/url"
	"regexp"
	"strings"
)

// Score is clamped to [0, 150].
const (
	MinScore = 0
	MaxScore = 150

	baseScore        = 40
	nameWordScore    = 50
	exactDomainScore = 40
	keywordScore     = 20
	keywordCap       = 60
	depthPenaltyStep = 5
	officialBoost    = 150
)

// blacklistedSchemes are never explored regardless of score.
var blacklistedSchemes = map[string]bool{
	"mailto": true,
	"tel":    true,
	"javascript": true,
}

// blacklistedPathPatterns match share widgets, privacy, and login routes.
var blacklistedPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/(share|sharer)/`),
	regexp.MustCompile(`(?i)(privacy|terms|cookie)[-_]?(policy)?`),
	regexp.MustCompile(`(?i)/(login|signin|sign-in|logout|signup|sign-up)(/|$)`),
}

// registryDomains are known-generic sources: allowed, but never promoted
// to "official" even on an exact name match.
var registryDomains = map[string]bool{
	"opencorporates.com": true,
	"linkedin.com":       true,
	"wikipedia.org":      true,
	"bloomberg.com":      true,
	"reuters.com":        true,
	"crunchbase.com":     true,
}

// keywordsByEntityKind lists the entity-type boost keywords of spec §4.1.
var keywordsByEntityKind = map[string][]string{
	"news":    {"breaking", "latest"},
	"person":  {"bio", "profile"},
	"company": {"investor", "annual report", "leadership"},
	"org":     {"investor", "annual report", "leadership"},
}

// Profile is the minimal view of a target entity the Scorer needs: its
// canonical name, known aliases, kind, and official-domains set.
type Profile struct {
	Name            string
	Aliases         []string
	Kind            string
	OfficialDomains []string
}

// Result is the Scorer's output: a clamped score and a short
// human-readable explanation for observability and debugging.
type Result struct {
	Score  int
	Reason string
}

// Score computes (score, reason) for a candidate URL discovered at depth
// with the given anchor text, against profile and priors. Deterministic
// given identical inputs (spec §4.1, §8 determinism property).
func Score(rawURL, anchorText string, depth int, profile Profile, priors PriorLookup) Result {
	var reasons []string

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{Score: MinScore, Reason: "unparseable url"}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if blacklistedSchemes[scheme] {
		return Result{Score: MinScore, Reason: "blacklisted scheme " + scheme}
	}
	for _, pat := range blacklistedPathPatterns {
		if pat.MatchString(parsed.Path) || pat.MatchString(rawURL) {
			return Result{Score: MinScore, Reason: "blacklisted path pattern"}
		}
	}

	score := baseScore
	reasons = append(reasons, "base 40")

	domain := RegistrableDomain(parsed.Host)
	isRegistryDomain := registryDomains[domain]

	haystack := strings.ToLower(rawURL + " " + anchorText)
	names := append([]string{profile.Name}, profile.Aliases...)
	for _, name := range names {
		for _, word := range strings.Fields(name) {
			if len(word) <= 3 {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(word)) {
				score += nameWordScore
				reasons = append(reasons, "name word match")
				break
			}
		}
	}

	if !isRegistryDomain && domain != "" {
		canonical := strings.ToLower(strings.ReplaceAll(profile.Name, " ", ""))
		sld := strings.SplitN(domain, ".", 2)[0]
		if canonical != "" && sld == canonical {
			score += exactDomainScore
			reasons = append(reasons, "exact second-level-domain match")
		}
	}

	kwApplied := 0
	for _, kw := range keywordsByEntityKind[strings.ToLower(profile.Kind)] {
		if strings.Contains(haystack, kw) && kwApplied < keywordCap {
			add := keywordScore
			if kwApplied+add > keywordCap {
				add = keywordCap - kwApplied
			}
			score += add
			kwApplied += add
			reasons = append(reasons, "entity-type keyword "+kw)
		}
	}

	if priors != nil {
		if w := priors.DomainPriorWeight(domain); w != 0 {
			score += int(w)
			reasons = append(reasons, "learned domain prior")
		}
		if w := priors.PatternWeight(rawURL); w != 0 {
			score += int(w)
			reasons = append(reasons, "learned pattern weight")
		}
	}

	score -= depthPenaltyStep * depth
	if depth > 0 {
		reasons = append(reasons, "depth penalty")
	}

	if isOfficialDomain(domain, profile.OfficialDomains) {
		score += officialBoost
		reasons = append(reasons, "official domain")
	}

	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	return Result{Score: score, Reason: strings.Join(reasons, "; ")}
}

// ShouldExplore reports whether result's score meets threshold.
func ShouldExplore(result Result, threshold int) bool {
	return result.Score >= threshold
}

func isOfficialDomain(domain string, officialDomains []string) bool {
	for _, d := range officialDomains {
		if strings.EqualFold(domain, RegistrableDomain(d)) {
			return true
		}
	}
	return false
}

// RegistrableDomain strips a leading "www." and returns host unchanged
// otherwise. It does not attempt full public-suffix-list resolution;
// good enough for the scorer's additive-weight purpose.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
