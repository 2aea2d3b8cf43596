// Package snippet builds highlighted excerpts of page text for search results.
package snippet

import (
	"html"
	"strings"

	"github.com/JakeFAU/site-search/internal/lemma"
)

const (
	defaultBefore = 8
	defaultAfter  = 22
	ellipsis      = "..."
)

// Normalizer maps a word to its index term.
type Normalizer interface {
	Normalize(word string) string
}

// Generator cuts a window of words around the best cluster of matches and wraps
// matching words in <b> tags. Everything else is HTML-escaped.
type Generator struct {
	normalizer Normalizer
	before     int
	after      int
}

// Option customizes a Generator.
type Option func(*Generator)

// WithWindow sets how many words surround the first match of the window.
func WithWindow(before, after int) Option {
	return func(g *Generator) {
		if before >= 0 {
			g.before = before
		}
		if after > 0 {
			g.after = after
		}
	}
}

// New returns a Generator.
func New(normalizer Normalizer, opts ...Option) *Generator {
	g := &Generator{normalizer: normalizer, before: defaultBefore, after: defaultAfter}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns an excerpt of text around the query terms.
func (g *Generator) Generate(text string, terms []string) string {
	tokens := lemma.Split(text)
	if len(tokens) == 0 {
		return ""
	}
	want := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		want[term] = struct{}{}
	}

	matched := make([]string, len(tokens))
	var hits []int
	for i, tok := range tokens {
		term := g.normalizer.Normalize(tok.Word)
		if _, ok := want[term]; ok && term != "" {
			matched[i] = term
			hits = append(hits, i)
		}
	}

	if len(hits) == 0 {
		last := min(len(tokens), g.before+g.after) - 1
		return g.render(text, tokens, matched, 0, last)
	}

	bestStart, bestEnd, bestScore := 0, 0, -1
	for _, hit := range hits {
		start := max(0, hit-g.before)
		end := min(len(tokens)-1, hit+g.after)
		if score := distinct(matched[start : end+1]); score > bestScore {
			bestStart, bestEnd, bestScore = start, end, score
		}
	}
	return g.render(text, tokens, matched, bestStart, bestEnd)
}

func (g *Generator) render(text string, tokens []lemma.Token, matched []string, first, last int) string {
	var sb strings.Builder
	if first > 0 {
		sb.WriteString(ellipsis)
	}
	cursor := tokens[first].Start
	for i := first; i <= last; i++ {
		tok := tokens[i]
		sb.WriteString(html.EscapeString(text[cursor:tok.Start]))
		if matched[i] != "" {
			sb.WriteString("<b>")
			sb.WriteString(html.EscapeString(tok.Word))
			sb.WriteString("</b>")
		} else {
			sb.WriteString(html.EscapeString(tok.Word))
		}
		cursor = tok.End
	}
	if last < len(tokens)-1 {
		sb.WriteString(ellipsis)
	} else {
		sb.WriteString(html.EscapeString(strings.TrimRight(text[cursor:], " \t\n")))
	}
	return sb.String()
}

func distinct(matched []string) int {
	seen := make(map[string]struct{})
	for _, term := range matched {
		if term != "" {
			seen[term] = struct{}{}
		}
	}
	return len(seen)
}
