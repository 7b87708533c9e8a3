package links

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML extracts links and titles from HTML pages.
type HTML struct {
	Scope Scope
}

// Links returns the in-scope anchors of body, resolved against pageURL.
func (h HTML) Links(pageURL, body string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, strings.TrimSpace(href))
		}
	})
	return h.Scope.filter(pageURL, hrefs)
}

// Title returns the text of the document's first <title> element, or "" if
// absent. Entities are decoded; whitespace and case are kept as served.
func (HTML) Title(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return doc.Find("title").First().Text()
}
