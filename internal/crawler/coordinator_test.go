package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/clock"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/linkfilter"
)

type statusCall struct {
	id        int64
	status    index.SiteStatus
	lastError string
}

type recordingStatuses struct {
	mu    sync.Mutex
	calls []statusCall
	err   error
}

func (r *recordingStatuses) SetSiteStatus(ctx context.Context, id int64, status index.SiteStatus, lastError string, _ time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, statusCall{id: id, status: status, lastError: lastError})
	return r.err
}

func (r *recordingStatuses) last() statusCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

var fixedClock = clock.Fixed(time.Unix(1700000000, 0).UTC())

func newTestCoordinator(indexer PageIndexer, statuses StatusRecorder, cfg CoordinatorConfig) *Coordinator {
	worker := NewWorker(indexer, linkfilter.New(), nil, 0, zap.NewNop())
	return NewCoordinator(worker, nil, statuses, fixedClock, cfg, zap.NewNop())
}

func TestCoordinatorFetchesCycleOnce(t *testing.T) {
	t.Parallel()

	indexer := newGraphIndexer(map[string][]string{
		"https://example.com/":  {"https://example.com/a"},
		"https://example.com/a": {"https://example.com/b", "https://example.com"},
		"https://example.com/b": {"https://example.com/a", "https://example.com/b"},
	})
	statuses := &recordingStatuses{}
	status, err := newTestCoordinator(indexer, statuses, CoordinatorConfig{Parallelism: 4}).
		Crawl(context.Background(), testSite, "run-1")
	require.NoError(t, err)
	require.Equal(t, index.StatusIndexed, status)
	for _, url := range []string{"https://example.com/", "https://example.com/a", "https://example.com/b"} {
		require.Equal(t, 1, indexer.count(url), url)
	}
	require.Equal(t, statusCall{id: 1, status: index.StatusIndexed}, statuses.last())
}

func TestCoordinatorStorageFailureFailsSite(t *testing.T) {
	t.Parallel()

	indexer := newGraphIndexer(map[string][]string{
		"https://example.com/": {"https://example.com/a", "https://example.com/b"},
	})
	indexer.errs["https://example.com/a"] = fmt.Errorf("save page: %w: disk full", index.ErrStorage)
	statuses := &recordingStatuses{}

	status, err := newTestCoordinator(indexer, statuses, CoordinatorConfig{Parallelism: 2}).
		Crawl(context.Background(), testSite, "run-1")
	require.NoError(t, err)
	require.Equal(t, index.StatusFailed, status)
	require.Equal(t, 1, indexer.count("https://example.com/b"), "sibling branch keeps going")
	require.Contains(t, statuses.last().lastError, "disk full")
}

func TestCoordinatorDuplicatePageKeepsSiteIndexed(t *testing.T) {
	t.Parallel()

	indexer := newGraphIndexer(map[string][]string{
		"https://example.com/":  {"https://example.com/b"},
		"https://example.com/b": {"https://example.com/c"},
	})
	indexer.errs["https://example.com/b"] = fmt.Errorf("save page: %w: %w", index.ErrStorage, index.ErrDuplicatePage)
	statuses := &recordingStatuses{}

	status, err := newTestCoordinator(indexer, statuses, CoordinatorConfig{Parallelism: 2}).
		Crawl(context.Background(), testSite, "run-1")
	require.NoError(t, err)
	require.Equal(t, index.StatusIndexed, status)
	require.Equal(t, 1, indexer.count("https://example.com/c"), "subtree below the stored page is crawled")
	require.Equal(t, statusCall{id: 1, status: index.StatusIndexed}, statuses.last())
}

func TestCoordinatorCancellationRecordsCause(t *testing.T) {
	t.Parallel()

	indexer := newGraphIndexer(map[string][]string{"https://example.com/": {"https://example.com/a"}})
	indexer.block = make(chan struct{})
	indexer.called = make(chan string, 1)
	statuses := &recordingStatuses{}
	coordinator := newTestCoordinator(indexer, statuses, CoordinatorConfig{Parallelism: 1})

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan index.SiteStatus, 1)
	go func() {
		status, _ := coordinator.Crawl(ctx, testSite, "run-1")
		done <- status
	}()
	<-indexer.called
	cancel(index.ErrStoppedByUser)

	select {
	case status := <-done:
		require.Equal(t, index.StatusFailed, status)
	case <-time.After(2 * time.Second):
		t.Fatal("crawl did not unwind after cancellation")
	}
	require.Equal(t, index.ErrStoppedByUser.Error(), statuses.last().lastError)
	require.Zero(t, indexer.count("https://example.com/a"))
}

func TestCoordinatorTimeout(t *testing.T) {
	t.Parallel()

	indexer := newGraphIndexer(nil)
	indexer.block = make(chan struct{})
	statuses := &recordingStatuses{}
	coordinator := newTestCoordinator(indexer, statuses, CoordinatorConfig{Parallelism: 1, Timeout: 20 * time.Millisecond})

	status, err := coordinator.Crawl(context.Background(), testSite, "run-1")
	require.NoError(t, err)
	require.Equal(t, index.StatusFailed, status)
	require.Contains(t, statuses.last().lastError, ErrCrawlTimeout.Error())
}

func TestCoordinatorVisitedFactoryError(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatuses{}
	worker := NewWorker(newGraphIndexer(nil), linkfilter.New(), nil, 0, nil)
	coordinator := NewCoordinator(worker, func(context.Context, string, index.Site) (VisitedSet, error) {
		return nil, errors.New("no redis")
	}, statuses, fixedClock, CoordinatorConfig{}, nil)

	status, err := coordinator.Crawl(context.Background(), testSite, "run-1")
	require.NoError(t, err)
	require.Equal(t, index.StatusFailed, status)
	require.Contains(t, statuses.last().lastError, "no redis")
}

type clearedVisited struct {
	VisitedSet
	cleared chan struct{}
}

func (c *clearedVisited) Clear(ctx context.Context) error {
	close(c.cleared)
	return c.VisitedSet.Clear(ctx)
}

func TestCoordinatorClearsVisitedSetAfterCrawl(t *testing.T) {
	t.Parallel()

	set := &clearedVisited{cleared: make(chan struct{})}
	worker := NewWorker(newGraphIndexer(nil), linkfilter.New(), nil, 0, nil)
	coordinator := NewCoordinator(worker, func(ctx context.Context, runID string, site index.Site) (VisitedSet, error) {
		inner, err := NewMemoryVisited(ctx, runID, site)
		set.VisitedSet = inner
		return set, err
	}, &recordingStatuses{}, fixedClock, CoordinatorConfig{}, nil)

	status, err := coordinator.Crawl(context.Background(), testSite, "run-1")
	require.NoError(t, err)
	require.Equal(t, index.StatusIndexed, status)
	select {
	case <-set.cleared:
	default:
		t.Fatal("visited set was not cleared")
	}
}

func TestCoordinatorReportsStatusWriteFailure(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatuses{err: errors.New("db gone")}
	_, err := newTestCoordinator(newGraphIndexer(nil), statuses, CoordinatorConfig{}).
		Crawl(context.Background(), testSite, "run-1")
	require.ErrorContains(t, err, "db gone")
}
