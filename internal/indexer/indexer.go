// Package indexer turns one fetched page into stored index rows.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/crawler"
	"github.com/JakeFAU/site-search/internal/htmltext"
	"github.com/JakeFAU/site-search/internal/index"
)

// DefaultReferer is sent with every page request.
const DefaultReferer = "https://www.google.com"

// PageStore is the part of index.Store the indexer writes to.
type PageStore interface {
	SavePage(ctx context.Context, page index.Page, terms map[string]int) (index.Page, error)
}

// Indexer fetches a page, extracts its text and links, and stores the page with its terms.
type Indexer struct {
	fetcher    crawler.Fetcher
	store      PageStore
	lemmatizer index.Lemmatizer
	referer    string
	logger     *zap.Logger
}

// New builds an Indexer. An empty referer uses DefaultReferer.
func New(fetcher crawler.Fetcher, store PageStore, lemmatizer index.Lemmatizer, referer string, logger *zap.Logger) *Indexer {
	if referer == "" {
		referer = DefaultReferer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		fetcher:    fetcher,
		store:      store,
		lemmatizer: lemmatizer,
		referer:    referer,
		logger:     logger,
	}
}

// IndexPage implements crawler.PageIndexer. The page is stored under the requested URL;
// links are resolved against the final URL after redirects. When the path is already
// stored the links are returned together with an error wrapping index.ErrDuplicatePage.
func (i *Indexer) IndexPage(ctx context.Context, site index.Site, url string) ([]string, error) {
	resp, err := i.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Referer: i.referer})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", url, index.ErrFetchFailed, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: %w: HTTP %d", url, index.ErrFetchFailed, resp.StatusCode)
	}
	if !resp.IsText() {
		return nil, fmt.Errorf("fetch %s: %w: unsupported content type %q", url, index.ErrFetchFailed, resp.MediaType())
	}

	doc, err := htmltext.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", url, index.ErrFetchFailed, err)
	}
	terms := i.lemmatizer.Analyze(doc.Text())

	code := resp.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	page, err := i.store.SavePage(ctx, index.Page{
		SiteID:  site.ID,
		Path:    url,
		Code:    code,
		Content: strings.ToValidUTF8(string(resp.Body), "�"),
	}, terms)
	base := resp.URL
	if base == "" {
		base = url
	}
	links := doc.Links(base)
	if errors.Is(err, index.ErrDuplicatePage) {
		// another writer stored the path first; its links are still ours to follow
		return links, fmt.Errorf("save page %s: %w: %w", url, index.ErrStorage, err)
	}
	if err != nil {
		return nil, fmt.Errorf("save page %s: %w: %w", url, index.ErrStorage, err)
	}
	i.logger.Debug("page stored",
		zap.Int64("page_id", page.ID),
		zap.String("url", url),
		zap.Int("terms", len(terms)),
		zap.Int("links", len(links)),
		zap.Bool("headless", resp.UsedHeadless),
	)
	return links, nil
}
