package index

import (
	"context"
	"time"
)

// Store persists sites, pages, lemmas and postings.
//
// SavePage and DeletePage are atomic: a page, its lemma frequency deltas and its postings are
// written or removed together.
type Store interface {
	// Reset deletes every site and, transitively, all pages, lemmas and postings.
	Reset(ctx context.Context) error

	CreateSite(ctx context.Context, site Site) (Site, error)
	// SiteByURL returns ErrNotFound when no site row has the given root URL.
	SiteByURL(ctx context.Context, url string) (Site, error)
	SiteByID(ctx context.Context, id int64) (Site, error)
	Sites(ctx context.Context) ([]Site, error)
	SetSiteStatus(ctx context.Context, id int64, status SiteStatus, lastError string, at time.Time) error

	// SavePage inserts the page and, for every term, increments the canonical lemma frequency
	// by its count and links a posting with rank = count. Returns ErrDuplicatePage if the path
	// already exists for the site.
	SavePage(ctx context.Context, page Page, terms map[string]int) (Page, error)
	// DeletePage removes the page at path together with its postings and lemma contributions.
	// Deleting a missing page is not an error.
	DeletePage(ctx context.Context, siteID int64, path string) error
	PageByID(ctx context.Context, id int64) (Page, error)

	// LemmaByTerm returns the canonical lemma row or ErrNotFound.
	LemmaByTerm(ctx context.Context, siteID int64, term string) (Lemma, error)
	// TermPostings returns the postings of term within a site in insertion order.
	TermPostings(ctx context.Context, siteID int64, term string) ([]Posting, error)

	CountPages(ctx context.Context, siteID int64) (int, error)
	CountLemmas(ctx context.Context, siteID int64) (int, error)

	Close() error
}

// Lemmatizer turns text into normalized terms.
type Lemmatizer interface {
	// Analyze maps every indexable term in text to its occurrence count.
	Analyze(text string) map[string]int
	// Normalize returns the term for one word, or "" when the word is not indexable.
	Normalize(word string) string
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
