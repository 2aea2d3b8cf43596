// Package indexing owns the indexing lifecycle: full crawls of every configured site,
// stopping them, and reindexing single pages.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/crawler"
	"github.com/JakeFAU/site-search/internal/index"
)

// SiteCrawler crawls one site to completion and records its final status.
type SiteCrawler interface {
	Crawl(ctx context.Context, site index.Site, runID string) (index.SiteStatus, error)
}

// Service starts and stops indexing runs. Whether a run is in progress is read from the
// store (any site in StatusCrawling), so state survives restarts; mu serializes the
// check-and-transition.
type Service struct {
	store   index.Store
	crawler SiteCrawler
	pages   crawler.PageIndexer
	clock   index.Clock
	sites   []index.SiteConfig
	logger  *zap.Logger

	baseCtx context.Context

	mu     sync.Mutex
	active *run
}

type run struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// New builds a Service. Crawls run under baseCtx, not under the request that started them.
func New(
	baseCtx context.Context,
	store index.Store,
	siteCrawler SiteCrawler,
	pages crawler.PageIndexer,
	clock index.Clock,
	sites []index.SiteConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		crawler: siteCrawler,
		pages:   pages,
		clock:   clock,
		sites:   sites,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Running reports whether any site is being crawled.
func (s *Service) Running(ctx context.Context) (bool, error) {
	sites, err := s.store.Sites(ctx)
	if err != nil {
		return false, fmt.Errorf("list sites: %w", err)
	}
	for _, site := range sites {
		if site.Status == index.StatusCrawling {
			return true, nil
		}
	}
	return false, nil
}

// Start wipes the index, creates one site per configured root and crawls them all in the
// background. It returns the run id, or ErrAlreadyRunning without touching any data.
func (s *Service) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, err := s.Running(ctx)
	if err != nil {
		return "", err
	}
	if running {
		return "", index.ErrAlreadyRunning
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	if err := s.store.Reset(ctx); err != nil {
		return "", fmt.Errorf("reset index: %w", err)
	}

	now := s.clock.Now()
	sites := make([]index.Site, 0, len(s.sites))
	for _, cfg := range s.sites {
		site, err := s.store.CreateSite(ctx, index.Site{
			URL:        cfg.URL,
			Name:       cfg.Name,
			Status:     index.StatusCrawling,
			StatusTime: now,
		})
		if err != nil {
			err = fmt.Errorf("create site %s: %w", cfg.URL, err)
			// sites created so far must not look like a live run
			if failErr := s.failCrawling(ctx, err.Error()); failErr != nil {
				err = errors.Join(err, failErr)
			}
			return "", err
		}
		sites = append(sites, site)
	}

	runCtx, cancel := context.WithCancelCause(s.baseCtx)
	r := &run{id: id.String(), cancel: cancel, done: make(chan struct{})}
	s.active = r
	logger := s.logger.With(zap.String("run_id", r.id))
	logger.Info("indexing started", zap.Int("sites", len(sites)))

	var wg sync.WaitGroup
	for _, site := range sites {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.crawler.Crawl(runCtx, site, r.id); err != nil {
				logger.Error("site crawl ended without a recorded status", zap.String("site", site.URL), zap.Error(err))
			}
		}()
	}
	go func() {
		wg.Wait()
		cancel(nil)
		s.mu.Lock()
		if s.active == r {
			s.active = nil
		}
		s.mu.Unlock()
		close(r.done)
		logger.Info("indexing finished")
	}()
	return r.id, nil
}

// Stop cancels the active run and marks every site still crawling as failed with
// index.ErrStoppedByUser. It returns ErrNotRunning when no site is crawling.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, err := s.Running(ctx)
	if err != nil {
		return err
	}
	if !running {
		return index.ErrNotRunning
	}
	if s.active != nil {
		s.active.cancel(index.ErrStoppedByUser)
	}
	if err := s.failCrawling(ctx, index.ErrStoppedByUser.Error()); err != nil {
		return err
	}
	s.logger.Info("indexing stopped")
	return nil
}

// Wait blocks until the active run, if any, has finished every site.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for indexing: %w", ctx.Err())
	}
}

// Shutdown cancels the active run with cause and waits for its crawls to record a status.
func (s *Service) Shutdown(ctx context.Context, cause error) error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	r.cancel(cause)
	return s.Wait(ctx)
}

func (s *Service) failCrawling(ctx context.Context, lastError string) error {
	sites, err := s.store.Sites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	now := s.clock.Now()
	var errs []error
	for _, site := range sites {
		if site.Status != index.StatusCrawling {
			continue
		}
		if err := s.store.SetSiteStatus(ctx, site.ID, index.StatusFailed, lastError, now); err != nil {
			errs = append(errs, fmt.Errorf("fail site %s: %w", site.URL, err))
		}
	}
	return errors.Join(errs...)
}

// IndexPage reindexes one page of a configured site without following its links.
// The owning site row is created on demand; any stored page at the same path is replaced.
func (s *Service) IndexPage(ctx context.Context, rawURL string) error {
	rawURL = index.CanonicalURL(strings.TrimSpace(rawURL))
	cfg, ok := s.siteFor(rawURL)
	if !ok {
		return index.ErrOutOfScope
	}

	site, created, err := s.ensureSite(ctx, cfg)
	if err != nil {
		return err
	}
	logger := s.logger.With(zap.String("site", site.URL), zap.String("url", rawURL))

	indexErr := s.reindex(ctx, site, rawURL)
	// a site crawled by an active run keeps the status that run records
	var status index.SiteStatus
	lastError := ""
	switch {
	case created && indexErr != nil:
		status, lastError = index.StatusFailed, indexErr.Error()
	case indexErr == nil && (created || site.Status != index.StatusCrawling):
		status = index.StatusIndexed
	}
	if status != "" {
		if err := s.store.SetSiteStatus(context.WithoutCancel(ctx), site.ID, status, lastError, s.clock.Now()); err != nil {
			return errors.Join(indexErr, fmt.Errorf("record site status: %w", err))
		}
	}
	if indexErr != nil {
		logger.Warn("page reindex failed", zap.Error(indexErr))
		return indexErr
	}
	logger.Info("page reindexed")
	return nil
}

// reindex replaces the page at rawURL. A crawl may store the same path between the
// delete and the save, so a duplicate is retried once.
func (s *Service) reindex(ctx context.Context, site index.Site, rawURL string) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.store.DeletePage(ctx, site.ID, rawURL); err != nil {
			return fmt.Errorf("delete page %s: %w: %w", rawURL, index.ErrStorage, err)
		}
		if _, err = s.pages.IndexPage(ctx, site, rawURL); !errors.Is(err, index.ErrDuplicatePage) {
			return err
		}
		s.logger.Debug("page stored concurrently, retrying", zap.String("url", rawURL))
	}
	return err
}

func (s *Service) ensureSite(ctx context.Context, cfg index.SiteConfig) (index.Site, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	site, err := s.store.SiteByURL(ctx, cfg.URL)
	if err == nil {
		return site, false, nil
	}
	if !errors.Is(err, index.ErrNotFound) {
		return index.Site{}, false, fmt.Errorf("find site %s: %w", cfg.URL, err)
	}
	site, err = s.store.CreateSite(ctx, index.Site{
		URL:        cfg.URL,
		Name:       cfg.Name,
		Status:     index.StatusCrawling,
		StatusTime: s.clock.Now(),
	})
	if err != nil {
		return index.Site{}, false, fmt.Errorf("create site %s: %w", cfg.URL, err)
	}
	return site, true, nil
}

func (s *Service) siteFor(rawURL string) (index.SiteConfig, bool) {
	for _, cfg := range s.sites {
		if index.HasRoot(rawURL, cfg.URL) {
			return cfg, true
		}
	}
	return index.SiteConfig{}, false
}
