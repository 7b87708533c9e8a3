package search

import "sync"

// Visited is a concurrency-safe set of pages that have been claimed by a run.
// A page is claimed at most once and never released.
type Visited struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisited returns a set with the given pages already claimed.
func NewVisited(claimed ...string) *Visited {
	v := &Visited{seen: make(map[string]struct{}, len(claimed))}
	for _, url := range claimed {
		v.seen[url] = struct{}{}
	}
	return v
}

// TryClaim returns true if url was not yet claimed, and marks it claimed.
func (v *Visited) TryClaim(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[url]; ok {
		return false
	}
	v.seen[url] = struct{}{}
	return true
}

// Len returns the number of claimed pages.
func (v *Visited) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
