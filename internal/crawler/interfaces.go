package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/site-search/internal/index"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageIndexer fetches, parses and stores one page, returning its outbound links.
// Fetch problems wrap index.ErrFetchFailed; store problems wrap index.ErrStorage.
// A page someone else stored first wraps index.ErrDuplicatePage and still yields its links.
type PageIndexer interface {
	IndexPage(ctx context.Context, site index.Site, url string) ([]string, error)
}

// LinkFilter keeps the in-scope page links of a site.
type LinkFilter interface {
	Select(candidates []string, siteRoot string) []string
}

// VisitedSet is a crawl-scoped set with atomic insert-if-absent.
type VisitedSet interface {
	MarkIfNew(ctx context.Context, url string) (bool, error)
	// Clear drops the set once its crawl is over.
	Clear(ctx context.Context) error
}

// VisitedFactory builds the visited set for one site crawl of one indexing run.
type VisitedFactory func(ctx context.Context, runID string, site index.Site) (VisitedSet, error)

// Limiter throttles fetches per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// StatusRecorder persists a site's lifecycle status.
type StatusRecorder interface {
	SetSiteStatus(ctx context.Context, id int64, status index.SiteStatus, lastError string, at time.Time) error
}
