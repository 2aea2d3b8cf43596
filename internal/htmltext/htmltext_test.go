package htmltext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html>
<head>
  <title>  Fruit
   Stand </title>
  <style>body { color: red }</style>
  <script>var apple = 1;</script>
</head>
<body>
  <h1>Apples</h1><p>Fresh<b>ly</b> picked</p><p>bananas</p>
  <noscript>enable javascript</noscript>
  <a href="/about">About</a>
  <a href="contact.html#form">Contact</a>
  <a href="https://other.example/x">Elsewhere</a>
  <a href="">Empty</a>
  <a href="http://[::1">Broken</a>
</body>
</html>`

func TestDocument(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(page))
	require.NoError(t, err)
	require.Equal(t, "Fruit Stand", doc.Title())

	text := doc.Text()
	require.Contains(t, text, "Apples Freshly picked bananas")
	require.NotContains(t, text, "var apple")
	require.NotContains(t, text, "color")
	require.NotContains(t, text, "javascript")

	require.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/shop/contact.html#form",
		"https://other.example/x",
	}, doc.Links("https://example.com/shop/index.html"))
}

func TestLinksHonorBaseElement(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<html><head><base href="https://cdn.example/docs/"></head>
<body><a href="guide">Guide</a></body></html>`))
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn.example/docs/guide"}, doc.Links("https://example.com/"))
}

func TestLinksInvalidBase(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<a href="/x">x</a>`))
	require.NoError(t, err)
	require.Nil(t, doc.Links("http://[::1"))
}

func TestTextAndMissingTitle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "plain text", Text("plain   text"))
	doc, err := Parse([]byte("<p>no title</p>"))
	require.NoError(t, err)
	require.Empty(t, doc.Title())
}
