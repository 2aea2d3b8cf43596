package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-search/internal/crawler"
)

type stubFetcher struct {
	resp  crawler.FetchResponse
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.calls++
	return s.resp, s.err
}

type staticDetector bool

func (d staticDetector) ShouldPromote(crawler.FetchResponse) bool { return bool(d) }

func TestFetcherKeepsPlainResponseWhenNotPromoted(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{resp: htmlResponse("<p>plain</p>")}
	headless := &stubFetcher{}
	resp, err := NewFetcher(plain, headless, staticDetector(false), nil).
		Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, "<p>plain</p>", string(resp.Body))
	require.Zero(t, headless.calls)
}

func TestFetcherPromotes(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{resp: htmlResponse(`<div id="app"></div>`)}
	headless := &stubFetcher{resp: htmlResponse("<p>rendered</p>")}
	resp, err := NewFetcher(plain, headless, staticDetector(true), nil).
		Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, "<p>rendered</p>", string(resp.Body))
	require.True(t, resp.UsedHeadless)
}

func TestFetcherFallsBackWhenRenderFails(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{resp: htmlResponse(`<div id="app"></div>`)}
	headless := &stubFetcher{err: errors.New("chrome missing")}
	resp, err := NewFetcher(plain, headless, staticDetector(true), nil).
		Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, `<div id="app"></div>`, string(resp.Body))
	require.False(t, resp.UsedHeadless)
}

func TestFetcherPassesPlainFetchErrors(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{err: errors.New("HTTP 404")}
	headless := &stubFetcher{}
	_, err := NewFetcher(plain, headless, staticDetector(true), nil).
		Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/missing"})
	require.ErrorContains(t, err, "404")
	require.Zero(t, headless.calls)
}

func TestFetcherCanceledRender(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plain := &stubFetcher{resp: htmlResponse(`<div id="app"></div>`)}
	headless := &stubFetcher{err: context.Canceled}
	_, err := NewFetcher(plain, headless, staticDetector(true), nil).
		Fetch(ctx, crawler.FetchRequest{URL: "https://example.com/"})
	require.ErrorIs(t, err, context.Canceled)
}
