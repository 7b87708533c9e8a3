// Command wikihop-mcp is an MCP server that exposes wikihop as tools for LLM
// agents. It can find the shortest link chain between two wiki pages and
// inspect the title and links of a single page, via stdio transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/latebit/wikihop/internal/config"
	"github.com/latebit/wikihop/internal/logging"
	"github.com/latebit/wikihop/internal/search"
	"github.com/latebit/wikihop/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// defaultMaxRounds bounds searches started by agents, which cannot interrupt
// a tool call.
const defaultMaxRounds = 6

func main() {
	configPath := flag.String("config", os.Getenv("WIKIHOP_CONFIG"), "TOML config file (env: WIKIHOP_CONFIG)")
	wiki := flag.String("wiki", "", "wiki origin for bare paths and titles (default: origin from config, then the source page)")
	maxRounds := flag.Int("max-rounds", defaultMaxRounds, "upper bound on rounds per search")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	noCache := flag.Bool("no-cache", false, "disable the page cache")
	http3 := flag.Bool("http3", false, "fetch pages over HTTP/3")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if *wiki != "" {
		cfg.Origin = strings.TrimSuffix(*wiki, "/")
	}
	cfg.Insecure = cfg.Insecure || *insecure
	cfg.NoCache = cfg.NoCache || *noCache
	cfg.HTTP3 = cfg.HTTP3 || *http3

	// stdout carries the protocol; logs go to stderr.
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	sess, err := session.New(cfg, logger)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer sess.Close()

	s := server.NewMCPServer("wikihop-mcp", "0.1.0")

	origin := cfg.SiteOrigin()
	h := &handler{sess: sess, origin: origin, pathPrefix: cfg.PathPrefix, maxRounds: *maxRounds}
	s.AddTool(wikiPathTool(origin), h.wikiPath)
	s.AddTool(wikiTitleTool(origin), h.wikiTitle)
	s.AddTool(wikiLinksTool(origin), h.wikiLinks)

	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}

type handler struct {
	sess       *session.Session
	origin     string
	pathPrefix string
	maxRounds  int
}

// resolveURL accepts a full http(s) URL, a bare path such as /wiki/Raven, or
// a page title such as "Writing desk", and returns a page URL on the wiki.
func (h *handler) resolveURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty page reference")
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme: %s (expected http or https)", u.Scheme)
		}
		return raw, nil
	}
	if h.origin == "" {
		return "", fmt.Errorf("bare reference %q requires -wiki flag", raw)
	}
	if strings.HasPrefix(raw, "/") {
		return h.origin + raw, nil
	}
	title := strings.ReplaceAll(raw, " ", "_")
	return h.origin + h.pathPrefix + url.PathEscape(title), nil
}

// Tool definitions.

// urlHint returns a description suffix telling the LLM how to name pages.
func urlHint(origin string) string {
	if origin != "" {
		return fmt.Sprintf("Connected to %s. Pages may be given as titles, bare paths like /wiki/Raven, or full URLs.", origin)
	}
	return "Use full http(s) page URLs, e.g. https://host/wiki/Raven."
}

func urlDesc(origin string) string {
	if origin != "" {
		return "page title, bare path, or URL, e.g. Raven or /wiki/Raven"
	}
	return "page URL, e.g. https://host/wiki/Raven"
}

func wikiPathTool(origin string) mcp.Tool {
	return mcp.NewTool("wiki_path",
		mcp.WithDescription(
			"Find a shortest chain of links from a source wiki page to a goal page. "+
				"The search follows content links breadth-first and stops at the first page "+
				"whose title equals the goal page's title. "+
				urlHint(origin),
		),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description(urlDesc(origin)),
		),
		mcp.WithString("goal",
			mcp.Required(),
			mcp.Description(urlDesc(origin)),
		),
		mcp.WithNumber("width",
			mcp.Description("Pages fetched concurrently per round (default from config, max 128)"),
		),
		mcp.WithNumber("max_rounds",
			mcp.Description("Rounds to try before giving up (server limit applies)"),
		),
	)
}

func wikiTitleTool(origin string) mcp.Tool {
	return mcp.NewTool("wiki_title",
		mcp.WithDescription(
			"Fetch a wiki page and return the title that path searches compare. "+
				urlHint(origin),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description(urlDesc(origin)),
		),
	)
}

func wikiLinksTool(origin string) mcp.Tool {
	return mcp.NewTool("wiki_links",
		mcp.WithDescription(
			"List the content links of a wiki page that path searches would follow. "+
				urlHint(origin),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description(urlDesc(origin)),
		),
	)
}

// Tool handlers.
// Handler signatures are dictated by mcp-go's ToolHandlerFunc type.

func (h *handler) wikiPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) { //nolint:gocritic // signature required by mcp-go
	rawSource, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	rawGoal, err := req.RequireString("goal")
	if err != nil {
		return mcp.NewToolResultError("goal is required"), nil
	}

	source, err := h.resolveURL(rawSource)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid source: %v", err)), nil
	}
	goal, err := h.resolveURL(rawGoal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid goal: %v", err)), nil
	}

	opts := h.sess.Options(nil)
	opts.Width = max(1, min(req.GetInt("width", opts.Width), 128))
	opts.MaxRounds = h.roundLimit(req.GetInt("max_rounds", 0))

	res, err := h.sess.Search(ctx, source, goal, opts)
	switch {
	case err == nil:
		return mcp.NewToolResultText(formatResult(res)), nil
	case errors.Is(err, search.ErrExhausted), errors.Is(err, search.ErrRoundLimit):
		return mcp.NewToolResultText(fmt.Sprintf("No path found: %v", err)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
}

// roundLimit clamps a requested round count to the server's limit.
func (h *handler) roundLimit(requested int) int {
	if h.maxRounds <= 0 {
		return max(requested, 0)
	}
	if requested <= 0 || requested > h.maxRounds {
		return h.maxRounds
	}
	return requested
}

func (h *handler) wikiTitle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) { //nolint:gocritic // signature required by mcp-go
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url is required"), nil
	}
	pageURL, err := h.resolveURL(rawURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}

	title, err := h.sess.Title(ctx, pageURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	if title == "" {
		title = "(no title)"
	}
	return mcp.NewToolResultText(title), nil
}

func (h *handler) wikiLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) { //nolint:gocritic // signature required by mcp-go
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url is required"), nil
	}
	pageURL, err := h.resolveURL(rawURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}

	found, err := h.sess.Links(ctx, pageURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d links from %s\n", len(found), pageURL)
	for _, l := range found {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}

// formatResult renders a search result as a plain-text summary for LLM consumption.
func formatResult(res *search.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found a path of %d hops to %q (%d rounds, %d pages, %.1fs)\n\n",
		res.Hops(), res.Title, res.Stats.Rounds, res.Stats.Pages, res.Stats.Elapsed.Seconds())
	for i, u := range res.Path {
		fmt.Fprintf(&b, "%d. %s\n", i, u)
	}
	return b.String()
}
