package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/latebit/wikihop/internal/links"
	"github.com/latebit/wikihop/internal/search"
)

func welcomeMarkdown() string {
	return "# wikihop\n\n" +
		"Finds a shortest chain of links from the **source** page to a page titled like the **goal** page.\n\n" +
		"- `tab` switches between the fields and this view\n" +
		"- `enter` starts a search\n" +
		"- `esc` cancels a running search\n" +
		"- `q` or `ctrl+c` quits\n"
}

func runningMarkdown(source, goal string) string {
	return fmt.Sprintf("# Searching\n\nfrom %s\n\nto %s\n", mdLink(source), mdLink(goal))
}

// resultMarkdown renders the path of a successful search as a numbered list.
func resultMarkdown(res *search.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Title)
	fmt.Fprintf(&b, "Reached in **%d hops** after %d rounds and %d pages (%s).\n\n",
		res.Hops(), res.Stats.Rounds, res.Stats.Pages, res.Stats.Elapsed.Round(10*time.Millisecond))
	for i, u := range res.Path {
		fmt.Fprintf(&b, "%d. %s\n", i, mdLink(u))
	}
	return b.String()
}

func errorMarkdown(err error) string {
	return "# " + errorSummary(err) + "\n\n" + fmt.Sprintf("`%v`\n", err)
}

// errorSummary names the outcome of a search that did not reach the goal.
func errorSummary(err error) string {
	switch {
	case errors.Is(err, search.ErrExhausted):
		return "No path: every reachable page was checked"
	case errors.Is(err, search.ErrRoundLimit):
		return "No path within the round limit"
	case errors.Is(err, search.ErrGoalUnavailable):
		return "Goal page unavailable"
	case errors.Is(err, context.Canceled):
		return "Search cancelled"
	default:
		return "Error: " + err.Error()
	}
}

// statsLine summarises search progress for the status bar.
func statsLine(st search.Stats) string {
	return fmt.Sprintf("round %d  %d pages  %d queued  %s",
		st.Rounds, st.Pages, st.Frontier, st.Elapsed.Round(100*time.Millisecond))
}

// mdLink renders a page URL as a markdown link labelled with its readable form.
func mdLink(u string) string {
	label := strings.NewReplacer("[", `\[`, "]", `\]`).Replace(links.Display(u))
	return "[" + label + "](" + u + ")"
}

func renderMarkdown(body string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return "", err
	}
	return r.Render(body)
}
