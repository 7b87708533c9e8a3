package links

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown extracts links and titles from markdown documents.
type Markdown struct {
	Scope Scope
}

// Links returns the in-scope link destinations of body, resolved against pageURL.
func (m Markdown) Links(pageURL, body string) []string {
	return m.Scope.filter(pageURL, Extract(body))
}

// Title returns the first top-level heading of body.
func (Markdown) Title(body string) string {
	return ExtractTitle(body)
}

// Extract parses body as markdown and returns all non-fragment link destinations.
func Extract(body string) []string {
	src := []byte(body)
	reader := text.NewReader(src)
	doc := goldmark.DefaultParser().Parse(reader)

	var links []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(link.Destination)
		if dest != "" && !strings.HasPrefix(dest, "#") {
			links = append(links, dest)
		}
		return ast.WalkContinue, nil
	})
	return links
}

// ExtractTitle returns the text of the first top-level heading in the markdown body.
// Returns empty string if no heading is found.
func ExtractTitle(body string) string {
	src := []byte(body)
	reader := text.NewReader(src)
	doc := goldmark.DefaultParser().Parse(reader)

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 1 {
			return ast.WalkContinue, nil
		}
		title = string(heading.Text(src))
		return ast.WalkStop, nil
	})
	return title
}
