// Package fetcher defines the Fetcher contract — the platform's sole IO
// boundary for retrieving a URL's HTML and outbound links — plus a
// lightweight default HTTP implementation.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// Outlink is one hyperlink discovered on a fetched page.
type Outlink struct {
	URL        string
	AnchorText string
}

// Result is a fetch's raw output: the unmodified HTML body plus the
// outlinks discovered while parsing it. Content extraction (cleaning,
// metadata, page type) is pkg/extractor's job, not the Fetcher's.
type Result struct {
	FinalURL   string
	StatusCode int
	RawHTML    string
	Outlinks   []Outlink
}

// Fetcher retrieves a URL's HTML and outbound links. Implementations
// must be safe for concurrent use and must respect ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Result, error)
}

// HTTPFetcher is the default Fetcher, backed by net/http and
// golang.org/x/net/html for outlink discovery.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

// WithMaxBytes caps the response body read, discarding the remainder.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBytes = n }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

const defaultMaxBytes = 2 << 20 // 2MB

// NewHTTPFetcher returns an HTTPFetcher configured by opts.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    http.DefaultClient,
		userAgent: "webintel-crawler/1.0",
		maxBytes:  defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Fetch implements [Fetcher].
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetcher: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Result{}, fmt.Errorf("fetcher: read body: %w", err)
	}

	result := Result{
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		RawHTML:    string(body),
	}
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("fetcher: %s: HTTP %d", target, resp.StatusCode)
	}

	doc, err := html.Parse(strings.NewReader(result.RawHTML))
	if err != nil {
		return result, fmt.Errorf("fetcher: parse html: %w", err)
	}
	result.Outlinks = extractOutlinks(doc)
	return result, nil
}

func extractOutlinks(doc *html.Node) []Outlink {
	var links []Outlink
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
					break
				}
			}
			if href != "" {
				links = append(links, Outlink{URL: href, AnchorText: anchorText(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
