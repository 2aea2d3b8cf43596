// Package search ranks indexed pages against free-text queries.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/htmltext"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/metrics"
)

// DefaultLimit is the page size used when a query does not set one.
const DefaultLimit = 20

// commonShare is the fraction of a term's heaviest postings left out of its corpus frequency.
const commonShare = 0.05

// Query is one search request. Site, when set, restricts the search to that site root.
type Query struct {
	Text   string
	Site   string
	Offset int
	Limit  int
}

// Result is one ranked page.
type Result struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// Page is one slice of the ranked result list. Count is the size of the full list.
type Page struct {
	Count   int
	Results []Result
}

// Store is the read side of index.Store used by the planner.
type Store interface {
	Sites(ctx context.Context) ([]index.Site, error)
	SiteByURL(ctx context.Context, url string) (index.Site, error)
	TermPostings(ctx context.Context, siteID int64, term string) ([]index.Posting, error)
	PageByID(ctx context.Context, id int64) (index.Page, error)
}

// Analyzer extracts the unique terms of a query.
type Analyzer interface {
	Terms(text string) []string
}

// Snippets renders the excerpt shown for a result.
type Snippets interface {
	Generate(text string, terms []string) string
}

// Planner answers queries with AND semantics: a page matches only if it has a posting for
// every query term. Terms are intersected rarest first and pages are ranked by the sum of
// their posting ranks.
type Planner struct {
	store        Store
	analyzer     Analyzer
	snippets     Snippets
	defaultLimit int
	logger       *zap.Logger
}

// NewPlanner builds a Planner. A non-positive defaultLimit uses DefaultLimit.
func NewPlanner(store Store, analyzer Analyzer, snippets Snippets, defaultLimit int, logger *zap.Logger) *Planner {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		store:        store,
		analyzer:     analyzer,
		snippets:     snippets,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

type hit struct {
	site   index.Site
	pageID int64
	rank   float64
}

type termPostings struct {
	term      string
	postings  []index.Posting
	frequency float64
}

// Search returns the requested slice of ranked results. It fails with ErrEmptyQuery when
// the text holds no indexable terms and with ErrUnknownSite when Site has no stored row.
func (p *Planner) Search(ctx context.Context, q Query) (Page, error) {
	start := time.Now()
	defer func() { metrics.ObserveSearch(time.Since(start)) }()

	terms := p.analyzer.Terms(q.Text)
	if len(terms) == 0 {
		return Page{}, index.ErrEmptyQuery
	}
	sites, err := p.scope(ctx, q.Site)
	if err != nil {
		return Page{}, err
	}

	var hits []hit
	for _, site := range sites {
		siteHits, err := p.matchSite(ctx, site, terms)
		if err != nil {
			return Page{}, err
		}
		hits = append(hits, siteHits...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank > hits[j].rank })

	limit := q.Limit
	if limit <= 0 {
		limit = p.defaultLimit
	}
	from := min(max(q.Offset, 0), len(hits))

	// pages removed by a concurrent reindex or wipe since the posting scan are
	// skipped and the page is topped up from the rest of the ranking
	count := len(hits)
	results := make([]Result, 0, min(limit, len(hits)-from))
	for _, h := range hits[from:] {
		if len(results) == limit {
			break
		}
		result, err := p.render(ctx, h, terms)
		if errors.Is(err, index.ErrNotFound) {
			count--
			p.logger.Debug("matched page vanished", zap.Int64("page_id", h.pageID))
			continue
		}
		if err != nil {
			return Page{}, err
		}
		results = append(results, result)
	}
	p.logger.Debug("search served",
		zap.Strings("terms", terms),
		zap.Int("sites", len(sites)),
		zap.Int("count", count),
		zap.Int("returned", len(results)),
	)
	return Page{Count: count, Results: results}, nil
}

func (p *Planner) scope(ctx context.Context, siteURL string) ([]index.Site, error) {
	if siteURL == "" {
		sites, err := p.store.Sites(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sites: %w", err)
		}
		return sites, nil
	}
	site, err := p.store.SiteByURL(ctx, index.NormalizeRoot(siteURL))
	if errors.Is(err, index.ErrNotFound) {
		return nil, index.ErrUnknownSite
	}
	if err != nil {
		return nil, fmt.Errorf("find site %s: %w", siteURL, err)
	}
	return []index.Site{site}, nil
}

// matchSite returns the pages of site holding every term, in discovery order of the
// rarest term.
func (p *Planner) matchSite(ctx context.Context, site index.Site, terms []string) ([]hit, error) {
	byTerm := make([]termPostings, 0, len(terms))
	for _, term := range terms {
		postings, err := p.store.TermPostings(ctx, site.ID, term)
		if err != nil {
			return nil, fmt.Errorf("load postings for %q: %w", term, err)
		}
		if len(postings) == 0 {
			return nil, nil
		}
		byTerm = append(byTerm, termPostings{term: term, postings: postings, frequency: corpusFrequency(postings)})
	}
	sort.SliceStable(byTerm, func(i, j int) bool { return byTerm[i].frequency < byTerm[j].frequency })

	rarest := byTerm[0].postings
	ranks := make(map[int64]float64, len(rarest))
	order := make([]int64, 0, len(rarest))
	for _, posting := range rarest {
		if _, seen := ranks[posting.PageID]; !seen {
			order = append(order, posting.PageID)
		}
		ranks[posting.PageID] += posting.Rank
	}

	for _, next := range byTerm[1:] {
		onPage := make(map[int64]float64, len(next.postings))
		for _, posting := range next.postings {
			onPage[posting.PageID] += posting.Rank
		}
		order = slices.DeleteFunc(order, func(id int64) bool {
			rank, ok := onPage[id]
			if !ok {
				delete(ranks, id)
				return true
			}
			ranks[id] += rank
			return false
		})
		if len(order) == 0 {
			return nil, nil
		}
	}

	hits := make([]hit, 0, len(order))
	for _, id := range order {
		hits = append(hits, hit{site: site, pageID: id, rank: ranks[id]})
	}
	return hits, nil
}

func (p *Planner) render(ctx context.Context, h hit, terms []string) (Result, error) {
	page, err := p.store.PageByID(ctx, h.pageID)
	if err != nil {
		return Result{}, fmt.Errorf("load page %d: %w", h.pageID, err)
	}
	result := Result{
		Site:      h.site.URL,
		SiteName:  h.site.Name,
		URI:       h.site.RelativePath(page.Path),
		Relevance: h.rank,
	}
	doc, err := htmltext.Parse([]byte(page.Content))
	if err != nil {
		p.logger.Warn("stored page is not parseable", zap.Int64("page_id", page.ID), zap.Error(err))
		return result, nil
	}
	result.Title = doc.Title()
	result.Snippet = p.snippets.Generate(doc.Text(), terms)
	return result, nil
}

// corpusFrequency sums a term's posting ranks after discarding the heaviest
// round(n*commonShare) of its n postings.
func corpusFrequency(postings []index.Posting) float64 {
	ranks := make([]float64, len(postings))
	for i, posting := range postings {
		ranks[i] = posting.Rank
	}
	slices.Sort(ranks)
	slices.Reverse(ranks)
	drop := int(math.Round(float64(len(ranks)) * commonShare))
	var total float64
	for _, rank := range ranks[drop:] {
		total += rank
	}
	return total
}
