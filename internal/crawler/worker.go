package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/metrics"
)

// DefaultDelay is the politeness pause before each fetch.
const DefaultDelay = 250 * time.Millisecond

// Worker processes one URL of a site crawl.
type Worker struct {
	indexer PageIndexer
	filter  LinkFilter
	limiter Limiter
	pauser  pauseController
	delay   time.Duration
	logger  *zap.Logger
}

// NewWorker builds a Worker. limiter may be nil. A non-positive delay disables the pause.
func NewWorker(indexer PageIndexer, filter LinkFilter, limiter Limiter, delay time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		indexer: indexer,
		filter:  filter,
		limiter: limiter,
		pauser:  &timerPauseController{},
		delay:   delay,
		logger:  logger,
	}
}

// Crawl pauses, checks for cancellation, indexes url and returns the links this call
// claimed in visited. Fetch failures end the branch quietly and a page already stored by
// another writer is followed without being stored again; anything else is returned.
func (w *Worker) Crawl(ctx context.Context, site index.Site, visited VisitedSet, url string) ([]string, error) {
	w.pauser.Pause(ctx, w.delay)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", url, err)
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("crawl %s: %w", url, err)
		}
	}

	metrics.IncActiveWorkers()
	links, err := w.indexer.IndexPage(ctx, site, url)
	metrics.DecActiveWorkers()
	switch {
	case errors.Is(err, index.ErrFetchFailed):
		metrics.ObserveFetchFailure(site.URL)
		w.logger.Info("page skipped", zap.String("url", url), zap.Error(err))
		return nil, nil
	case errors.Is(err, index.ErrDuplicatePage):
		w.logger.Debug("page already indexed", zap.String("url", url))
	case err != nil:
		return nil, err
	default:
		metrics.ObservePageIndexed(site.URL)
	}

	var children []string
	for _, link := range w.filter.Select(links, site.URL) {
		isNew, err := visited.MarkIfNew(ctx, link)
		if err != nil {
			return children, fmt.Errorf("claim %s: %w", link, err)
		}
		if isNew {
			children = append(children, link)
		}
	}
	w.logger.Debug("page indexed", zap.String("url", url), zap.Int("links", len(links)), zap.Int("children", len(children)))
	return children, nil
}
