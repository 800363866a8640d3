// Package extractor implements the Content Extractor: HTML in, cleaned
// text + metadata + page-type label out (spec §4.3).
package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Result is the Content Extractor's output.
type Result struct {
	// CleanText is the script/style-stripped, whitespace-collapsed text.
	CleanText string

	// Metadata holds extracted meta fields: title, description, and any
	// og:* / twitter:* properties found.
	Metadata map[string]string

	// PageType is an open-vocabulary classification label (homepage,
	// news, profile, listing, …), opaque to every downstream consumer.
	PageType string
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// pageTypeRules classifies by keyword over url+title+body, checked in
// order; the first match wins.
var pageTypeRules = []struct {
	pageType string
	keywords []string
}{
	{"profile", []string{"/profile/", "/bio/", "/about-", "/people/"}},
	{"news", []string{"/news/", "/press/", "/article/", "breaking news"}},
	{"listing", []string{"/products/", "/catalog/", "/directory/"}},
	{"investor", []string{"/investor", "annual report", "shareholders"}},
	{"homepage", []string{}}, // fallback handled separately
}

// Extract parses rawHTML and returns its cleaned text, metadata, and
// classified page type. pageURL informs the URL-keyword half of
// classification; it need not be the fetch URL's canonical form.
func Extract(rawHTML, pageURL string) (Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Result{}, err
	}

	meta := map[string]string{}
	var textParts []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return // skip subtree entirely
			case "title":
				if n.FirstChild != nil {
					meta["title"] = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				extractMetaTag(n, meta)
			}
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				textParts = append(textParts, trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	cleanText := whitespaceRun.ReplaceAllString(strings.Join(textParts, " "), " ")
	cleanText = strings.TrimSpace(cleanText)

	pageType := classifyPageType(pageURL, meta["title"], cleanText)

	return Result{CleanText: cleanText, Metadata: meta, PageType: pageType}, nil
}

func extractMetaTag(n *html.Node, meta map[string]string) {
	var name, property, content string
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "name":
			name = attr.Val
		case "property":
			property = attr.Val
		case "content":
			content = attr.Val
		}
	}
	key := property
	if key == "" {
		key = name
	}
	if key == "" || content == "" {
		return
	}
	lower := strings.ToLower(key)
	if lower == "description" || strings.HasPrefix(lower, "og:") || strings.HasPrefix(lower, "twitter:") {
		meta[key] = content
	}
}

func classifyPageType(pageURL, title, body string) string {
	haystack := strings.ToLower(pageURL + " " + title + " " + firstRunes(body, 2000))
	for _, rule := range pageTypeRules {
		if len(rule.keywords) == 0 {
			continue
		}
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.pageType
			}
		}
	}
	if parsed, err := url.Parse(pageURL); err == nil {
		if trimmed := strings.Trim(parsed.Path, "/"); trimmed == "" {
			return "homepage"
		}
	}
	return ""
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
