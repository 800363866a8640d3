package urlscore_test

import (
	"testing"

	"github.com/webintel/webintel/pkg/urlscore"
)

func TestScore_Blacklist(t *testing.T) {
	profile := urlscore.Profile{Name: "Acme Corp"}
	cases := []string{
		"mailto:info@acme.com",
		"https://acme.com/login",
		"https://acme.com/privacy-policy",
		"https://twitter.com/share/?url=acme",
	}
	for _, u := range cases {
		got := urlscore.Score(u, "", 0, profile, nil)
		if got.Score != urlscore.MinScore {
			t.Errorf("Score(%q) = %d, want %d (blacklisted)", u, got.Score, urlscore.MinScore)
		}
	}
}

func TestScore_NameWordMatch(t *testing.T) {
	profile := urlscore.Profile{Name: "Acme Corporation"}
	base := urlscore.Score("https://example.com/random", "", 0, profile, nil)
	withName := urlscore.Score("https://example.com/about-acme", "", 0, profile, nil)
	if withName.Score <= base.Score {
		t.Errorf("expected name-word match to raise score: base=%d withName=%d", base.Score, withName.Score)
	}
}

func TestScore_OfficialDomainBoost(t *testing.T) {
	profile := urlscore.Profile{Name: "Acme Corporation", OfficialDomains: []string{"acme.com"}}
	official := urlscore.Score("https://acme.com/news", "", 2, profile, nil)
	other := urlscore.Score("https://somenews.com/acme-news", "", 2, profile, nil)
	if official.Score != urlscore.MaxScore {
		t.Errorf("official domain score = %d, want clamped max %d", official.Score, urlscore.MaxScore)
	}
	if other.Score >= official.Score {
		t.Errorf("non-official score %d should be lower than official score %d", other.Score, official.Score)
	}
}

func TestScore_RegistryDomainNeverOfficial(t *testing.T) {
	profile := urlscore.Profile{Name: "Wikipedia"}
	got := urlscore.Score("https://wikipedia.org/wiki/Wikipedia", "", 0, profile, nil)
	if got.Score >= urlscore.MaxScore {
		t.Errorf("registry domain should not reach max score via exact-domain match, got %d", got.Score)
	}
}

func TestScore_DepthPenalty(t *testing.T) {
	profile := urlscore.Profile{Name: "Acme Corporation"}
	shallow := urlscore.Score("https://example.com/acme", "", 0, profile, nil)
	deep := urlscore.Score("https://example.com/acme", "", 5, profile, nil)
	if deep.Score >= shallow.Score {
		t.Errorf("deeper url should score lower: shallow=%d deep=%d", shallow.Score, deep.Score)
	}
}

func TestScore_ClampRange(t *testing.T) {
	profile := urlscore.Profile{Name: "Acme Corporation Acme Corporation", OfficialDomains: []string{"acme.com"}}
	got := urlscore.Score("https://acme.com/acme-corporation-news-investor-leadership", "Acme Corporation", 0, profile, nil)
	if got.Score < urlscore.MinScore || got.Score > urlscore.MaxScore {
		t.Fatalf("score %d out of range [%d,%d]", got.Score, urlscore.MinScore, urlscore.MaxScore)
	}
}

func TestShouldExplore(t *testing.T) {
	r := urlscore.Result{Score: 80}
	if !urlscore.ShouldExplore(r, 80) {
		t.Error("ShouldExplore should be true when score equals threshold")
	}
	if urlscore.ShouldExplore(r, 81) {
		t.Error("ShouldExplore should be false when score is below threshold")
	}
}

func TestPriorStore_BoostDomain(t *testing.T) {
	priors := urlscore.NewPriorStore()
	profile := urlscore.Profile{Name: "Acme Corporation"}
	before := urlscore.Score("https://news.example.com/acme-story", "", 1, profile, priors)
	priors.BoostDomain("news.example.com", 30)
	after := urlscore.Score("https://news.example.com/acme-story", "", 1, profile, priors)
	if after.Score <= before.Score {
		t.Errorf("expected boost to raise score: before=%d after=%d", before.Score, after.Score)
	}
}

func TestPriorStore_PatternWeight(t *testing.T) {
	priors := urlscore.NewPriorStore()
	if err := priors.SetPatternWeight(`/investor-relations/`, 25); err != nil {
		t.Fatalf("SetPatternWeight: %v", err)
	}
	profile := urlscore.Profile{Name: "Acme Corporation"}
	matched := urlscore.Score("https://example.com/investor-relations/2024", "", 0, profile, priors)
	unmatched := urlscore.Score("https://example.com/careers", "", 0, profile, priors)
	if matched.Score <= unmatched.Score {
		t.Errorf("pattern weight should raise matched score: matched=%d unmatched=%d", matched.Score, unmatched.Score)
	}
}

func TestPriorStore_SnapshotRoundTrip(t *testing.T) {
	priors := urlscore.NewPriorStore()
	priors.BoostDomain("acme.com", 42)
	snap := priors.Snapshot()

	restored := urlscore.NewPriorStore()
	restored.LoadSnapshot(snap)
	if got := restored.DomainPriorWeight("acme.com"); got != 42 {
		t.Errorf("restored domain weight = %v, want 42", got)
	}
}
