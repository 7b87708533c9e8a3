// Package search finds a shortest chain of links between two pages of a link
// graph. It expands the graph breadth-first in rounds: each round pops a
// bounded batch from the frontier, fetches every page of the batch
// concurrently, and stops as soon as an expanded page carries the goal title.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrExhausted is returned when the frontier empties without reaching the goal.
	ErrExhausted = errors.New("search: frontier exhausted without reaching goal")

	// ErrGoalUnavailable is returned when the goal page cannot be fetched at start.
	ErrGoalUnavailable = errors.New("search: goal page unavailable")

	// ErrRoundLimit is returned when Options.MaxRounds rounds ran without a match.
	ErrRoundLimit = errors.New("search: round limit reached")
)

// Fetcher retrieves the raw text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Extractor pulls outbound links and the title out of raw page text.
// Both methods must be safe for concurrent use and return empty results
// for text they cannot make sense of.
type Extractor interface {
	Links(pageURL, body string) []string
	Title(body string) string
}

// Options configures a search.
type Options struct {
	Width        int           // pages expanded concurrently per round (default: 32)
	FetchTimeout time.Duration // bound on a single fetch (default: 30s)
	MaxRounds    int           // give up after this many rounds, 0 for no limit
	Exclude      []string      // boundary pages that are never enqueued
	OnRound      func(Stats)   // called after every round that did not find the goal, may be nil
	Logger       *slog.Logger  // defaults to slog.Default()
}

func (o *Options) applyDefaults() {
	if o.Width <= 0 {
		o.Width = 32
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats reports the progress of a run.
type Stats struct {
	Rounds     int           // rounds completed
	Pages      int           // pages expanded so far
	Frontier   int           // entries waiting for a later round
	RoundStart time.Time     // when the last round started
	RoundTime  time.Duration // duration of the last round
	Elapsed    time.Duration // time since the run started
}

// Result is the outcome of a search that reached the goal.
type Result struct {
	RunID string
	Path  []string // source to goal, both inclusive
	Title string   // goal title that matched
	Stats Stats
}

// Hops returns the number of links followed from source to goal.
func (r *Result) Hops() int {
	return len(r.Path) - 1
}

// Search looks for the shortest chain of links from source to a page whose
// title equals the title of goal. It returns ErrExhausted if every reachable
// page was expanded without a match. Fetch failures during the crawl are
// treated as pages without links; only a failure to fetch goal itself is
// reported, as ErrGoalUnavailable.
func Search(ctx context.Context, source, goal string, fetcher Fetcher, extractor Extractor, opts Options) (*Result, error) {
	opts.applyDefaults()
	if source == "" || goal == "" {
		return nil, errors.New("search: source and goal are required")
	}

	r := &run{
		id:        uuid.NewString(),
		fetcher:   fetcher,
		extractor: extractor,
		opts:      opts,
		visited:   NewVisited(append([]string{source}, opts.Exclude...)...),
		frontier:  NewFrontier(),
	}
	r.logger = opts.Logger.With("run_id", r.id)

	title, err := r.goalTitle(ctx, goal)
	if err != nil {
		return nil, err
	}
	r.goal = goalMatcher{title: title}
	r.logger.Info("search started", "source", source, "goal", goal, "goal_title", title, "width", opts.Width)

	r.frontier.Push(Entry{URL: source})
	return r.loop(ctx)
}

// run owns all mutable state of one search.
type run struct {
	id        string
	fetcher   Fetcher
	extractor Extractor
	opts      Options
	logger    *slog.Logger
	goal      goalMatcher
	visited   *Visited
	frontier  *Frontier
	term      *terminator
}

func (r *run) goalTitle(ctx context.Context, goal string) (string, error) {
	fctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()
	body, err := r.fetcher.Fetch(fctx, goal)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrGoalUnavailable, goal, err)
	}
	return r.extractor.Title(body), nil
}

func (r *run) loop(parent context.Context) (*Result, error) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	r.term = newTerminator(cancel)

	start := time.Now()
	var stats Stats
	for {
		if err := parent.Err(); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if r.opts.MaxRounds > 0 && stats.Rounds >= r.opts.MaxRounds {
			return nil, fmt.Errorf("%w: %d rounds, %d pages", ErrRoundLimit, stats.Rounds, stats.Pages)
		}

		batch := r.frontier.PopBatch(r.opts.Width)
		if len(batch) == 0 {
			r.logger.Info("frontier exhausted", "rounds", stats.Rounds, "pages", stats.Pages)
			return nil, ErrExhausted
		}

		stats.RoundStart = time.Now()
		r.round(ctx, batch)
		stats.Rounds++
		stats.Pages += len(batch)
		stats.RoundTime = time.Since(stats.RoundStart)
		stats.Elapsed = time.Since(start)
		stats.Frontier = r.frontier.Len()

		if path, ok := r.term.result(); ok {
			r.logger.Info("goal found", "hops", len(path)-1, "rounds", stats.Rounds, "pages", stats.Pages)
			return &Result{RunID: r.id, Path: path, Title: r.goal.title, Stats: stats}, nil
		}
		if err := parent.Err(); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}

		r.logger.Debug("round complete",
			"round", stats.Rounds, "pages", stats.Pages, "frontier", stats.Frontier, "took", stats.RoundTime)
		if r.opts.OnRound != nil {
			r.opts.OnRound(stats)
		}
	}
}

// round expands every entry of batch concurrently and returns once all of
// them are done. Expansion failures never abort the round.
func (r *run) round(ctx context.Context, batch []Entry) {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range batch {
		g.Go(func() error {
			r.expand(gctx, e)
			return nil
		})
	}
	_ = g.Wait()
}

// expand fetches one page, checks it against the goal and, if it is not the
// goal, hands its links to the frontier.
func (r *run) expand(ctx context.Context, e Entry) {
	if ctx.Err() != nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	body, err := r.fetcher.Fetch(fctx, e.URL)
	cancel()

	// The run may have ended while the fetch was in flight.
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.Debug("fetch failed, treating as empty page", "url", e.URL, "error", err)
		return
	}

	if r.goal.isGoal(r.extractor.Title(body)) {
		if r.term.found(e.Chain.Extend(e.URL)) {
			r.logger.Debug("goal page expanded", "url", e.URL, "depth", e.Depth())
		}
		return
	}

	links := r.extractor.Links(e.URL, body)
	if len(links) == 0 {
		return
	}
	chain := e.Chain.Extend(e.URL)
	r.term.guard(func() {
		for _, link := range links {
			if r.visited.TryClaim(link) {
				r.frontier.Push(Entry{URL: link, Chain: chain})
			}
		}
	})
}
