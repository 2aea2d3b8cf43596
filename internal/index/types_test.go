package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasRoot(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		url  string
		root string
		want bool
	}{
		{"exact root", "https://example.com", "https://example.com", true},
		{"root with slash", "https://example.com/", "https://example.com/", true},
		{"nested path", "https://example.com/news/1", "https://example.com", true},
		{"query on root", "https://example.com?x=1", "https://example.com", true},
		{"lookalike host", "https://example.com.evil.org/a", "https://example.com", false},
		{"other site", "https://other.org/a", "https://example.com", false},
		{"empty root", "https://example.com", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, HasRoot(tc.url, tc.root))
		})
	}
}

func TestSiteRelativePath(t *testing.T) {
	t.Parallel()

	site := Site{URL: "https://example.com"}
	require.Equal(t, "/news/1", site.RelativePath("https://example.com/news/1"))
	require.Equal(t, "/", site.RelativePath("https://example.com"))
}

func TestSiteStatusIsTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, StatusIndexed.IsTerminal())
	require.True(t, StatusFailed.IsTerminal())
	require.False(t, StatusCrawling.IsTerminal())
	require.False(t, StatusQueued.IsTerminal())
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/", CanonicalURL("https://example.com"))
	require.Equal(t, "https://example.com/", CanonicalURL("https://example.com/"))
	require.Equal(t, "https://example.com/?q=1", CanonicalURL("https://example.com?q=1"))
	require.Equal(t, "https://example.com/docs", CanonicalURL("https://example.com/docs"))
	require.Equal(t, "not a url", CanonicalURL("not a url"))
}
