// Package lemma reduces free text to normalized index terms using Snowball stemmers.
//
// Cyrillic words go through the Russian stemmer and Latin words through the English one.
// Words in other scripts are lowercased and kept as they are.
package lemma

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
	"github.com/kljensen/snowball/russian"
)

const defaultMinLength = 2

// Token is one word of a text with its byte offsets.
type Token struct {
	Word  string
	Start int
	End   int
}

// Analyzer implements index.Lemmatizer.
type Analyzer struct {
	minLength int
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithMinLength drops words shorter than n runes.
func WithMinLength(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.minLength = n
		}
	}
}

// New returns an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{minLength: defaultMinLength}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze maps every indexable term in text to its occurrence count.
func (a *Analyzer) Analyze(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range Split(text) {
		if term := a.Normalize(tok.Word); term != "" {
			counts[term]++
		}
	}
	return counts
}

// Terms returns the unique terms of text in first-seen order.
func (a *Analyzer) Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Split(text) {
		term := a.Normalize(tok.Word)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// Normalize returns the term for one word, or "" when the word is a stop word or too short.
func (a *Analyzer) Normalize(word string) string {
	word = strings.ToLower(strings.TrimSpace(word))
	if utf8.RuneCountInString(word) < a.minLength {
		return ""
	}
	switch scriptOf(word) {
	case cyrillic:
		word = strings.ReplaceAll(word, "ё", "е")
		if _, stop := russianStopWords[word]; stop {
			return ""
		}
		return russian.Stem(word, false)
	case latin:
		if _, stop := englishStopWords[word]; stop {
			return ""
		}
		return english.Stem(word, false)
	default:
		return word
	}
}

// Split breaks text into maximal runs of letters.
func Split(text string) []Token {
	var (
		out   []Token
		start = -1
	)
	for i, r := range text {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, Token{Word: text[start:i], Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, Token{Word: text[start:], Start: start, End: len(text)})
	}
	return out
}

type script int

const (
	other script = iota
	latin
	cyrillic
)

func scriptOf(word string) script {
	for _, r := range word {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			return cyrillic
		case unicode.Is(unicode.Latin, r):
			return latin
		}
	}
	return other
}
