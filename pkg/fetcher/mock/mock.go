// Package mock provides a test double for the fetcher.Fetcher interface.
package mock

import (
	"context"
	"sync"

	"github.com/webintel/webintel/pkg/fetcher"
)

// FetchCall records a single invocation of Fetch.
type FetchCall struct {
	Ctx context.Context
	URL string
}

// Fetcher is a mock implementation of fetcher.Fetcher, keyed by URL.
type Fetcher struct {
	mu sync.Mutex

	// Results maps a requested URL to the Result to return.
	Results map[string]fetcher.Result

	// Errs maps a requested URL to the error to return instead.
	Errs map[string]error

	// DefaultErr is returned for any URL not present in Results or Errs.
	DefaultErr error

	calls []FetchCall
}

var _ fetcher.Fetcher = (*Fetcher)(nil)

// Fetch implements fetcher.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetcher.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FetchCall{Ctx: ctx, URL: url})
	f.mu.Unlock()

	if err, ok := f.Errs[url]; ok {
		return fetcher.Result{}, err
	}
	if res, ok := f.Results[url]; ok {
		return res, nil
	}
	return fetcher.Result{}, f.DefaultErr
}

// Calls returns a copy of every recorded Fetch call.
func (f *Fetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FetchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded Fetch calls.
func (f *Fetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Reset clears recorded calls.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
