// Package htmltext extracts titles, visible text and links from stored HTML.
package htmltext

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var nonTextElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"svg":      {},
}

// inline elements do not break words
var inlineElements = map[string]struct{}{
	"a": {}, "abbr": {}, "b": {}, "code": {}, "em": {}, "i": {}, "mark": {},
	"small": {}, "span": {}, "strong": {}, "sub": {}, "sup": {}, "u": {},
}

// Document wraps a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse parses raw HTML.
func Parse(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Title returns the trimmed contents of the first <title> element.
func (d *Document) Title() string {
	return strings.Join(strings.Fields(d.doc.Find("title").First().Text()), " ")
}

// Text returns the human-visible text with whitespace collapsed to single spaces.
// Adjacent elements are separated so that "<p>a</p><p>b</p>" yields "a b".
func (d *Document) Text() string {
	var sb strings.Builder
	for _, node := range d.doc.Nodes {
		collectText(node, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(node *html.Node, sb *strings.Builder) {
	breaks := false
	switch node.Type {
	case html.TextNode:
		sb.WriteString(node.Data)
		return
	case html.ElementNode:
		if _, skip := nonTextElements[node.Data]; skip {
			return
		}
		_, inline := inlineElements[node.Data]
		breaks = !inline
	}
	if breaks {
		sb.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
	if breaks {
		sb.WriteByte(' ')
	}
}

// Links returns every anchor href resolved against base, honoring a <base href> element.
// Unresolvable hrefs are skipped; order follows the document.
func (d *Document) Links(base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	if href, ok := d.doc.Find("base[href]").First().Attr("href"); ok {
		if override, err := baseURL.Parse(strings.TrimSpace(href)); err == nil {
			baseURL = override
		}
	}
	var out []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		abs, err := baseURL.Parse(href)
		if err != nil {
			return
		}
		out = append(out, abs.String())
	})
	return out
}

// Text parses raw HTML and returns its visible text, or "" if it cannot be parsed.
func Text(raw string) string {
	doc, err := Parse([]byte(raw))
	if err != nil {
		return ""
	}
	return doc.Text()
}
