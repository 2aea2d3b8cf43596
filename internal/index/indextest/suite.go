// Package indextest holds a conformance suite that every index.Store implementation runs.
package indextest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-search/internal/index"
)

// Factory builds an empty store for one subtest.
type Factory func(t *testing.T) index.Store

// RunStoreSuite exercises the index.Store contract against stores produced by newStore.
func RunStoreSuite(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("sites", func(t *testing.T) { testSites(t, newStore(t)) })
	t.Run("save page", func(t *testing.T) { testSavePage(t, newStore(t)) })
	t.Run("duplicate page", func(t *testing.T) { testDuplicatePage(t, newStore(t)) })
	t.Run("delete page", func(t *testing.T) { testDeletePage(t, newStore(t)) })
	t.Run("site isolation", func(t *testing.T) { testSiteIsolation(t, newStore(t)) })
	t.Run("reset", func(t *testing.T) { testReset(t, newStore(t)) })
	t.Run("concurrent lemma increments", func(t *testing.T) { testConcurrentSaves(t, newStore(t)) })
}

var statusAt = time.Unix(1700000000, 0).UTC()

func createSite(t *testing.T, store index.Store, url string) index.Site {
	t.Helper()
	site, err := store.CreateSite(context.Background(), index.Site{
		URL:        url,
		Name:       "site " + url,
		Status:     index.StatusCrawling,
		StatusTime: statusAt,
	})
	require.NoError(t, err)
	require.NotZero(t, site.ID)
	return site
}

func testSites(t *testing.T, store index.Store) {
	ctx := context.Background()
	first := createSite(t, store, "https://a.example")
	second := createSite(t, store, "https://b.example")

	got, err := store.SiteByURL(ctx, "https://b.example")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, index.StatusCrawling, got.Status)

	_, err = store.SiteByURL(ctx, "https://missing.example")
	require.ErrorIs(t, err, index.ErrNotFound)

	later := statusAt.Add(time.Minute)
	require.NoError(t, store.SetSiteStatus(ctx, first.ID, index.StatusFailed, "boom", later))
	got, err = store.SiteByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, index.StatusFailed, got.Status)
	require.Equal(t, "boom", got.LastError)
	require.True(t, got.StatusTime.Equal(later), "status time %v", got.StatusTime)

	sites, err := store.Sites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, first.ID, sites[0].ID)
	require.Equal(t, second.ID, sites[1].ID)
}

func testSavePage(t *testing.T, store index.Store) {
	ctx := context.Background()
	site := createSite(t, store, "https://a.example")

	p1, err := store.SavePage(ctx, index.Page{SiteID: site.ID, Path: "https://a.example/1", Code: 200, Content: "<p>one</p>"},
		map[string]int{"appl": 2, "banana": 1})
	require.NoError(t, err)
	require.NotZero(t, p1.ID)
	p2, err := store.SavePage(ctx, index.Page{SiteID: site.ID, Path: "https://a.example/2", Code: 200, Content: "<p>two</p>"},
		map[string]int{"banana": 3})
	require.NoError(t, err)

	got, err := store.PageByID(ctx, p1.ID)
	require.NoError(t, err)
	require.Equal(t, "https://a.example/1", got.Path)
	require.Equal(t, "<p>one</p>", got.Content)

	postings, err := store.TermPostings(ctx, site.ID, "banana")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	require.Equal(t, p1.ID, postings[0].PageID)
	require.InDelta(t, 1.0, postings[0].Rank, 1e-9)
	require.Equal(t, p2.ID, postings[1].PageID)
	require.InDelta(t, 3.0, postings[1].Rank, 1e-9)
	require.Equal(t, postings[0].LemmaID, postings[1].LemmaID, "one canonical lemma per site and term")

	pages, err := store.CountPages(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, 2, pages)
	lemmas, err := store.CountLemmas(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, 2, lemmas)
	lemma, err := store.LemmaByTerm(ctx, site.ID, "banana")
	require.NoError(t, err)
	require.Equal(t, 4, lemma.Frequency)
	require.Equal(t, postings[0].LemmaID, lemma.ID)

	_, err = store.PageByID(ctx, 987654)
	require.ErrorIs(t, err, index.ErrNotFound)

	none, err := store.TermPostings(ctx, site.ID, "cherry")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testDuplicatePage(t *testing.T, store index.Store) {
	ctx := context.Background()
	site := createSite(t, store, "https://a.example")
	page := index.Page{SiteID: site.ID, Path: "https://a.example/1", Code: 200}

	_, err := store.SavePage(ctx, page, map[string]int{"appl": 1})
	require.NoError(t, err)
	_, err = store.SavePage(ctx, page, map[string]int{"appl": 1})
	require.ErrorIs(t, err, index.ErrDuplicatePage)

	pages, err := store.CountPages(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, 1, pages)
	postings, err := store.TermPostings(ctx, site.ID, "appl")
	require.NoError(t, err)
	require.Len(t, postings, 1, "failed save must not leave postings behind")
}

func testDeletePage(t *testing.T, store index.Store) {
	ctx := context.Background()
	site := createSite(t, store, "https://a.example")

	p1, err := store.SavePage(ctx, index.Page{SiteID: site.ID, Path: "https://a.example/1", Code: 200},
		map[string]int{"appl": 2, "banana": 1})
	require.NoError(t, err)
	_, err = store.SavePage(ctx, index.Page{SiteID: site.ID, Path: "https://a.example/2", Code: 200},
		map[string]int{"banana": 3})
	require.NoError(t, err)

	require.NoError(t, store.DeletePage(ctx, site.ID, "https://a.example/1"))
	require.NoError(t, store.DeletePage(ctx, site.ID, "https://a.example/missing"))

	_, err = store.PageByID(ctx, p1.ID)
	require.ErrorIs(t, err, index.ErrNotFound)

	apple, err := store.TermPostings(ctx, site.ID, "appl")
	require.NoError(t, err)
	require.Empty(t, apple)
	banana, err := store.TermPostings(ctx, site.ID, "banana")
	require.NoError(t, err)
	require.Len(t, banana, 1)

	lemmas, err := store.CountLemmas(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, 1, lemmas, "lemma with no remaining pages is removed")
	lemma, err := store.LemmaByTerm(ctx, site.ID, "banana")
	require.NoError(t, err)
	require.Equal(t, 3, lemma.Frequency)
	_, err = store.LemmaByTerm(ctx, site.ID, "appl")
	require.ErrorIs(t, err, index.ErrNotFound)

	_, err = store.SavePage(ctx, index.Page{SiteID: site.ID, Path: "https://a.example/1", Code: 200},
		map[string]int{"appl": 5})
	require.NoError(t, err, "a deleted path can be indexed again")
}

func testSiteIsolation(t *testing.T, store index.Store) {
	ctx := context.Background()
	a := createSite(t, store, "https://a.example")
	b := createSite(t, store, "https://b.example")

	_, err := store.SavePage(ctx, index.Page{SiteID: a.ID, Path: "https://a.example/1", Code: 200},
		map[string]int{"appl": 1})
	require.NoError(t, err)
	_, err = store.SavePage(ctx, index.Page{SiteID: b.ID, Path: "https://b.example/1", Code: 200},
		map[string]int{"appl": 4})
	require.NoError(t, err)

	aPostings, err := store.TermPostings(ctx, a.ID, "appl")
	require.NoError(t, err)
	require.Len(t, aPostings, 1)
	bPostings, err := store.TermPostings(ctx, b.ID, "appl")
	require.NoError(t, err)
	require.Len(t, bPostings, 1)
	require.NotEqual(t, aPostings[0].LemmaID, bPostings[0].LemmaID)
}

func testReset(t *testing.T, store index.Store) {
	ctx := context.Background()
	site := createSite(t, store, "https://a.example")
	_, err := store.SavePage(ctx, index.Page{SiteID: site.ID, Path: "https://a.example/1", Code: 200},
		map[string]int{"appl": 1})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	sites, err := store.Sites(ctx)
	require.NoError(t, err)
	require.Empty(t, sites)
	pages, err := store.CountPages(ctx, site.ID)
	require.NoError(t, err)
	require.Zero(t, pages)
	lemmas, err := store.CountLemmas(ctx, site.ID)
	require.NoError(t, err)
	require.Zero(t, lemmas)
	postings, err := store.TermPostings(ctx, site.ID, "appl")
	require.NoError(t, err)
	require.Empty(t, postings)
}

func testConcurrentSaves(t *testing.T, store index.Store) {
	ctx := context.Background()
	site := createSite(t, store, "https://a.example")

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.SavePage(ctx, index.Page{
				SiteID: site.ID,
				Path:   fmt.Sprintf("https://a.example/%d", n),
				Code:   200,
			}, map[string]int{"shared": 2})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	postings, err := store.TermPostings(ctx, site.ID, "shared")
	require.NoError(t, err)
	require.Len(t, postings, writers)
	lemmas, err := store.CountLemmas(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, 1, lemmas)
	lemma, err := store.LemmaByTerm(ctx, site.ID, "shared")
	require.NoError(t, err)
	require.Equal(t, 2*writers, lemma.Frequency)
}
