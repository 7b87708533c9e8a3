package search

import "context"

// FetcherFunc adapts a plain function into the Fetcher interface. This lets
// callers plug in any client without the search package depending on it.
type FetcherFunc func(ctx context.Context, url string) (string, error)

// Fetch implements the Fetcher interface.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}
