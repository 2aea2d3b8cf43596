package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-search/internal/lemma"
)

func TestGenerateHighlightsMatches(t *testing.T) {
	t.Parallel()

	g := New(lemma.New())
	got := g.Generate("We sell apples and bananas.", []string{"appl", "banana"})
	require.Equal(t, "We sell <b>apples</b> and <b>bananas</b>.", got)
}

func TestGenerateWindowsLongText(t *testing.T) {
	t.Parallel()

	words := make([]string, 0, 100)
	for range 50 {
		words = append(words, "filler")
	}
	words = append(words, "apple")
	for range 49 {
		words = append(words, "padding")
	}
	g := New(lemma.New(), WithWindow(2, 3))
	got := g.Generate(strings.Join(words, " "), []string{"appl"})
	require.Equal(t, "...filler filler <b>apple</b> padding padding padding...", got)
}

func TestGeneratePrefersDenseWindow(t *testing.T) {
	t.Parallel()

	text := "apple one two three four five six seven eight nine apple banana cherry end"
	g := New(lemma.New(), WithWindow(0, 3))
	got := g.Generate(text, []string{"appl", "banana", "cherri"})
	require.Equal(t, "...<b>apple</b> <b>banana</b> <b>cherry</b> end", got)
}

func TestGenerateWithoutMatchReturnsLead(t *testing.T) {
	t.Parallel()

	g := New(lemma.New(), WithWindow(1, 2))
	require.Equal(t, "alpha beta gamma...", g.Generate("alpha beta gamma delta", []string{"zeta"}))
	require.Empty(t, g.Generate("  ", []string{"zeta"}))
}

func TestGenerateEscapesHTML(t *testing.T) {
	t.Parallel()

	g := New(lemma.New())
	got := g.Generate(`apples <script>alert("x")</script>`, []string{"appl"})
	require.NotContains(t, got, "<script>")
	require.Contains(t, got, "<b>apples</b>")
}
