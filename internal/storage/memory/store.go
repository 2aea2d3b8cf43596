// Package memory provides an in-memory index store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/site-search/internal/index"
)

type lemmaKey struct {
	siteID int64
	term   string
}

type pageKey struct {
	siteID int64
	path   string
}

// Store keeps sites, pages, lemmas and postings in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	nextSiteID    int64
	nextPageID    int64
	nextLemmaID   int64
	nextPostingID int64

	sites       map[int64]index.Site
	pages       map[int64]index.Page
	pagesByPath map[pageKey]int64
	lemmas      map[int64]index.Lemma
	lemmaByTerm map[lemmaKey]int64
	// postings per lemma, in insertion order
	postings map[int64][]index.Posting
	// lemma ids touched by a page, for cascades
	pageLemmas map[int64][]int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.sites = make(map[int64]index.Site)
	s.pages = make(map[int64]index.Page)
	s.pagesByPath = make(map[pageKey]int64)
	s.lemmas = make(map[int64]index.Lemma)
	s.lemmaByTerm = make(map[lemmaKey]int64)
	s.postings = make(map[int64][]index.Posting)
	s.pageLemmas = make(map[int64][]int64)
}

// Reset drops all data. Identifiers keep increasing so stale ids never resolve.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}

// CreateSite stores a new site row.
func (s *Store) CreateSite(_ context.Context, site index.Site) (index.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sites {
		if existing.URL == site.URL {
			return index.Site{}, fmt.Errorf("site %q already exists", site.URL)
		}
	}
	s.nextSiteID++
	site.ID = s.nextSiteID
	s.sites[site.ID] = site
	return site, nil
}

// SiteByURL finds a site by its root URL.
func (s *Store) SiteByURL(_ context.Context, url string) (index.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.URL == url {
			return site, nil
		}
	}
	return index.Site{}, index.ErrNotFound
}

// SiteByID finds a site by id.
func (s *Store) SiteByID(_ context.Context, id int64) (index.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return index.Site{}, index.ErrNotFound
	}
	return site, nil
}

// Sites lists all sites ordered by id.
func (s *Store) Sites(_ context.Context) ([]index.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]index.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetSiteStatus updates the lifecycle fields of a site.
func (s *Store) SetSiteStatus(
	_ context.Context,
	id int64,
	status index.SiteStatus,
	lastError string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return index.ErrNotFound
	}
	site.Status = status
	site.LastError = lastError
	site.StatusTime = at
	s.sites[id] = site
	return nil
}

// SavePage stores a page with its lemma contributions and postings.
func (s *Store) SavePage(_ context.Context, page index.Page, terms map[string]int) (index.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[page.SiteID]; !ok {
		return index.Page{}, fmt.Errorf("save page: site %d: %w", page.SiteID, index.ErrNotFound)
	}
	key := pageKey{siteID: page.SiteID, path: page.Path}
	if _, exists := s.pagesByPath[key]; exists {
		return index.Page{}, fmt.Errorf("save page %q: %w", page.Path, index.ErrDuplicatePage)
	}
	s.nextPageID++
	page.ID = s.nextPageID
	s.pages[page.ID] = page
	s.pagesByPath[key] = page.ID

	touched := make([]int64, 0, len(terms))
	for _, term := range sortedTerms(terms) {
		count := terms[term]
		lemmaID := s.upsertLemmaLocked(page.SiteID, term, count)
		s.nextPostingID++
		s.postings[lemmaID] = append(s.postings[lemmaID], index.Posting{
			ID:      s.nextPostingID,
			PageID:  page.ID,
			LemmaID: lemmaID,
			Rank:    float64(count),
		})
		touched = append(touched, lemmaID)
	}
	s.pageLemmas[page.ID] = touched
	return page, nil
}

func (s *Store) upsertLemmaLocked(siteID int64, term string, count int) int64 {
	key := lemmaKey{siteID: siteID, term: term}
	if id, ok := s.lemmaByTerm[key]; ok {
		lemma := s.lemmas[id]
		lemma.Frequency += count
		s.lemmas[id] = lemma
		return id
	}
	s.nextLemmaID++
	s.lemmas[s.nextLemmaID] = index.Lemma{ID: s.nextLemmaID, SiteID: siteID, Term: term, Frequency: count}
	s.lemmaByTerm[key] = s.nextLemmaID
	return s.nextLemmaID
}

// DeletePage removes a page, its postings and its lemma contributions.
func (s *Store) DeletePage(_ context.Context, siteID int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pageKey{siteID: siteID, path: path}
	pageID, ok := s.pagesByPath[key]
	if !ok {
		return nil
	}
	for _, lemmaID := range s.pageLemmas[pageID] {
		kept := s.postings[lemmaID][:0]
		for _, posting := range s.postings[lemmaID] {
			if posting.PageID != pageID {
				kept = append(kept, posting)
				continue
			}
			lemma := s.lemmas[lemmaID]
			lemma.Frequency -= int(posting.Rank)
			s.lemmas[lemmaID] = lemma
		}
		s.postings[lemmaID] = kept
		if lemma := s.lemmas[lemmaID]; lemma.Frequency <= 0 || len(kept) == 0 {
			delete(s.lemmas, lemmaID)
			delete(s.lemmaByTerm, lemmaKey{siteID: lemma.SiteID, term: lemma.Term})
			delete(s.postings, lemmaID)
		}
	}
	delete(s.pageLemmas, pageID)
	delete(s.pages, pageID)
	delete(s.pagesByPath, key)
	return nil
}

// PageByID returns a page by id.
func (s *Store) PageByID(_ context.Context, id int64) (index.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return index.Page{}, index.ErrNotFound
	}
	return page, nil
}

// LemmaByTerm returns the canonical lemma for a site and term.
func (s *Store) LemmaByTerm(_ context.Context, siteID int64, term string) (index.Lemma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.lemmaByTerm[lemmaKey{siteID: siteID, term: term}]
	if !ok {
		return index.Lemma{}, index.ErrNotFound
	}
	return s.lemmas[id], nil
}

// TermPostings returns a copy of the postings for a term within a site.
func (s *Store) TermPostings(_ context.Context, siteID int64, term string) ([]index.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.lemmaByTerm[lemmaKey{siteID: siteID, term: term}]
	if !ok {
		return nil, nil
	}
	src := s.postings[id]
	out := make([]index.Posting, len(src))
	copy(out, src)
	return out, nil
}

// CountPages returns the number of pages stored for a site.
func (s *Store) CountPages(_ context.Context, siteID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.pagesByPath {
		if key.siteID == siteID {
			count++
		}
	}
	return count, nil
}

// CountLemmas returns the number of distinct lemmas stored for a site.
func (s *Store) CountLemmas(_ context.Context, siteID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.lemmaByTerm {
		if key.siteID == siteID {
			count++
		}
	}
	return count, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func sortedTerms(terms map[string]int) []string {
	out := make([]string, 0, len(terms))
	for term := range terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
