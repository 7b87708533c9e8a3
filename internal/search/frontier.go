package search

import "sync"

// Chain is the path from the source page up to, but not including, a page.
// A Chain is never modified once built; use Extend to derive a longer one.
type Chain []string

// Extend returns a new chain with url appended. The receiver is left untouched,
// so sibling entries never share a backing array.
func (c Chain) Extend(url string) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, url)
}

// Entry is a page waiting to be expanded together with the chain that led to it.
type Entry struct {
	URL   string
	Chain Chain
}

// Depth returns the number of hops from the source page to the entry.
func (e Entry) Depth() int {
	return len(e.Chain)
}

// Frontier is a FIFO queue of entries awaiting expansion.
type Frontier struct {
	mu      sync.Mutex
	entries []Entry
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Push appends an entry to the back of the queue.
func (f *Frontier) Push(e Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

// PopBatch removes and returns up to limit entries from the front of the queue,
// in insertion order. It never blocks; an empty queue yields nil.
func (f *Frontier) PopBatch(limit int) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := min(limit, len(f.entries))
	if n <= 0 {
		return nil
	}
	batch := make([]Entry, n)
	copy(batch, f.entries[:n])

	// Drop references so popped chains can be collected.
	clear(f.entries[:n])
	f.entries = f.entries[n:]
	if len(f.entries) == 0 {
		f.entries = nil
	}
	return batch
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
