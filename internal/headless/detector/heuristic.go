// Package detector decides when a page fetched over plain HTTP should be rendered in
// headless Chrome before indexing, and provides a Fetcher that does the promotion.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-search/internal/crawler"
)

const (
	defaultMinWords    = 50
	defaultScriptShare = 25
)

// client-side frameworks mount into one of these
var mountPoints = strings.Join([]string{
	"#__next",
	"#__nuxt",
	"#root",
	"#app",
	"[data-reactroot]",
	"[ng-app]",
	"[ng-version]",
}, ", ")

// Heuristic promotes pages whose visible text is thin and that either mount a
// client-side app or are mostly inline script.
type Heuristic struct {
	// MinWords is the visible word count at which a page is trusted as-is.
	MinWords int
	// ScriptShare is the percentage of the body taken by inline scripts that
	// marks a thin page as script-built.
	ScriptShare int
}

// NewHeuristic creates a detector. A non-positive minWords uses the default.
func NewHeuristic(minWords int) *Heuristic {
	if minWords <= 0 {
		minWords = defaultMinWords
	}
	return &Heuristic{MinWords: minWords, ScriptShare: defaultScriptShare}
}

// ShouldPromote reports whether resp needs a headless render to expose its text.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || !resp.IsText() {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}

	share := scriptShare(doc, len(resp.Body))
	if visibleWords(doc) >= h.MinWords {
		return false
	}
	if doc.Find(mountPoints).Length() > 0 {
		return true
	}
	return share >= h.ScriptShare
}

func scriptShare(doc *goquery.Document, total int) int {
	if total == 0 {
		return 0
	}
	inline := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		inline += len(s.Text())
	})
	return inline * 100 / total
}

// visibleWords strips non-text elements from doc and counts what is left.
func visibleWords(doc *goquery.Document) int {
	body := doc.Find("body")
	body.Find("script, style, noscript, template").Remove()
	return len(strings.Fields(body.Text()))
}
