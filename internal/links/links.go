// Package links extracts outbound content links and page titles from wiki pages.
//
// Two page dialects are supported: HTML as served by MediaWiki-style sites,
// and markdown documents. Both restrict links to the content pages of a
// single site through a Scope.
package links

import (
	"fmt"
	"net/url"
	"strings"
)

// Extractor pulls links and a title out of a page body.
type Extractor interface {
	Links(pageURL, body string) []string
	Title(body string) string
}

// New returns the extractor for the given page format ("html" or "markdown").
func New(format string, scope Scope) (Extractor, error) {
	switch strings.ToLower(format) {
	case "", "html":
		return HTML{Scope: scope}, nil
	case "markdown", "md":
		return Markdown{Scope: scope}, nil
	default:
		return nil, fmt.Errorf("unsupported page format: %s (valid: html, markdown)", format)
	}
}

// Scope restricts links to the content pages of one site.
type Scope struct {
	Origin     string   // scheme://host of the site; empty means the origin of the linking page
	PathPrefix string   // content pages live under this path, e.g. /wiki/
	Exclude    []string // boundary pages that are never returned
}

// filter resolves hrefs against pageURL and keeps in-scope content pages, in
// order of first appearance and without duplicates.
func (s Scope) filter(pageURL string, hrefs []string) []string {
	excluded := make(map[string]bool, len(s.Exclude))
	for _, e := range s.Exclude {
		excluded[e] = true
	}
	origin := s.Origin
	if origin == "" {
		origin = originOf(pageURL)
	}
	origin = strings.TrimSuffix(origin, "/")

	seen := make(map[string]bool)
	var out []string
	for _, href := range hrefs {
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		u, err := url.Parse(Resolve(pageURL, href))
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme+"://"+u.Host != origin {
			continue
		}
		if u.RawQuery != "" {
			continue
		}
		rest, ok := strings.CutPrefix(u.Path, s.PathPrefix)
		if !ok || rest == "" || strings.Contains(rest, ":") {
			// Namespaced pages (File:, Category:, Special:...) are not content.
			continue
		}
		u.Fragment = ""
		u.RawFragment = ""
		link := u.String()
		if excluded[link] || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}

// Resolve resolves a possibly-relative link dest against baseURL.
func Resolve(baseURL, dest string) string {
	if strings.Contains(dest, "://") {
		return dest
	}
	base, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return dest
	}
	ref, err := url.Parse(dest)
	if err != nil {
		return dest
	}
	return base.ResolveReference(ref).String()
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Display returns rawURL with its path unescaped, so non-ASCII titles are
// legible. Unparseable input is returned unchanged.
func Display(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		return rawURL
	}
	if u.Host == "" {
		return p
	}
	return u.Scheme + "://" + u.Host + p
}
