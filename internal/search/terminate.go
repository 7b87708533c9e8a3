package search

import (
	"context"
	"errors"
	"sync"
)

// errFound is the cancellation cause recorded once a goal page is expanded.
var errFound = errors.New("search: goal found")

// goalMatcher compares expanded page titles with the goal title.
type goalMatcher struct {
	title string
}

// isGoal reports whether title is exactly the goal title.
func (g goalMatcher) isGoal(title string) bool {
	return title == g.title
}

// terminator records the first winning path of a run and cancels everything
// else. Frontier and visited-set updates go through guard, so none can land
// after found has returned.
type terminator struct {
	mu     sync.RWMutex
	done   bool
	path   []string
	cancel context.CancelCauseFunc
}

func newTerminator(cancel context.CancelCauseFunc) *terminator {
	return &terminator{cancel: cancel}
}

// found records path as the result if no result exists yet, then cancels the
// run. It returns false for every call after the first.
func (t *terminator) found(path []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.path = path
	t.cancel(errFound)
	return true
}

// guard runs fn unless the run has already terminated. It reports whether fn ran.
func (t *terminator) guard(fn func()) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.done {
		return false
	}
	fn()
	return true
}

// result returns the winning path, if any.
func (t *terminator) result() ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path, t.done
}
