package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/dispatcher"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/metrics"
)

// DefaultTimeout is the hard ceiling on one site crawl.
const DefaultTimeout = time.Hour

// ErrCrawlTimeout is the cancellation cause when a crawl hits its ceiling.
var ErrCrawlTimeout = errors.New("site crawl timed out")

// CoordinatorConfig tunes site crawls.
type CoordinatorConfig struct {
	// Parallelism bounds concurrent workers per site; zero means runtime.NumCPU().
	Parallelism int
	Timeout     time.Duration
}

// Coordinator runs one site crawl at a time per call and records the site's outcome.
type Coordinator struct {
	worker   *Worker
	visited  VisitedFactory
	statuses StatusRecorder
	clock    index.Clock
	cfg      CoordinatorConfig
	logger   *zap.Logger
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(
	worker *Worker,
	visited VisitedFactory,
	statuses StatusRecorder,
	clock index.Clock,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) *Coordinator {
	if visited == nil {
		visited = NewMemoryVisited
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		worker:   worker,
		visited:  visited,
		statuses: statuses,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Crawl indexes site from its root URL and sets it Indexed, or Failed with a last
// error on cancellation, timeout or a storage failure. The returned status is the
// one recorded.
func (c *Coordinator) Crawl(ctx context.Context, site index.Site, runID string) (index.SiteStatus, error) {
	logger := c.logger.With(zap.String("site", site.URL), zap.String("run_id", runID))
	ctx, cancel := context.WithTimeoutCause(ctx, c.cfg.Timeout, fmt.Errorf("%w after %s", ErrCrawlTimeout, c.cfg.Timeout))
	defer cancel()

	runErr := c.run(ctx, site, runID, logger)

	status, lastError := index.StatusIndexed, ""
	switch {
	case ctx.Err() != nil:
		status, lastError = index.StatusFailed, context.Cause(ctx).Error()
	case runErr != nil:
		status, lastError = index.StatusFailed, runErr.Error()
	}

	// the crawl context may already be done; the final status must still land
	if err := c.statuses.SetSiteStatus(context.WithoutCancel(ctx), site.ID, status, lastError, c.clock.Now()); err != nil {
		return status, fmt.Errorf("record site status: %w", err)
	}
	metrics.ObserveCrawl(string(status))
	if status == index.StatusFailed {
		logger.Warn("site crawl failed", zap.String("error", lastError))
	} else {
		logger.Info("site crawl finished")
	}
	return status, nil
}

func (c *Coordinator) run(ctx context.Context, site index.Site, runID string, logger *zap.Logger) error {
	visited, err := c.visited(ctx, runID, site)
	if err != nil {
		return fmt.Errorf("open visited set: %w", err)
	}
	defer func() {
		if err := visited.Clear(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("visited set not cleared", zap.Error(err))
		}
	}()
	root := index.CanonicalURL(site.URL)
	if _, err := visited.MarkIfNew(ctx, root); err != nil {
		return fmt.Errorf("claim root: %w", err)
	}

	pool := dispatcher.New(c.cfg.Parallelism, logger)
	logger.Info("site crawl started", zap.Int("workers", pool.Workers()))
	return pool.Run(ctx, func(ctx context.Context, url string) ([]string, error) {
		return c.worker.Crawl(ctx, site, visited, url)
	}, root)
}
