package lemma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeCountsStems(t *testing.T) {
	t.Parallel()

	a := New()
	got := a.Analyze("Apples and apple, the APPLE! Banana.")
	require.Equal(t, map[string]int{"appl": 3, "banana": 1}, got)
}

func TestAnalyzeRussian(t *testing.T) {
	t.Parallel()

	a := New()
	got := a.Analyze("Яблоко и яблоки на столе")
	require.Equal(t, 2, got["яблок"])
	require.NotContains(t, got, "и")
	require.NotContains(t, got, "на")
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New()
	text := "search engines index pages; indexed pages are searched"
	require.Equal(t, a.Analyze(text), a.Analyze(text))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	a := New()
	tests := []struct {
		word string
		want string
	}{
		{"Running", "run"},
		{"the", ""},
		{"x", ""},
		{"ёлка", New().Normalize("елка")},
		{"東京", "東京"},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			require.Equal(t, tt.want, a.Normalize(tt.word))
		})
	}
}

func TestWithMinLength(t *testing.T) {
	t.Parallel()

	a := New(WithMinLength(5))
	require.Empty(t, a.Normalize("cats"))
	require.Equal(t, "kitten", a.Normalize("kittens"))
}

func TestTermsKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	a := New()
	require.Equal(t, []string{"banana", "appl"}, a.Terms("banana apple bananas apples"))
	require.Empty(t, a.Terms("the and of"))
}

func TestSplitOffsets(t *testing.T) {
	t.Parallel()

	text := "Hi, мир!  go2far"
	tokens := Split(text)
	require.Len(t, tokens, 4)
	for _, tok := range tokens {
		require.Equal(t, tok.Word, text[tok.Start:tok.End])
	}
	require.Equal(t, "мир", tokens[1].Word)
	require.Equal(t, "far", tokens[3].Word)
}
