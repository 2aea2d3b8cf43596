package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/site-search/internal/index"
)

type concurrentVisitTracker struct {
	seen sync.Map
}

// NewMemoryVisited is a VisitedFactory backed by a process-local sync.Map per crawl.
func NewMemoryVisited(context.Context, string, index.Site) (VisitedSet, error) {
	return &concurrentVisitTracker{}, nil
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *concurrentVisitTracker) MarkIfNew(_ context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded, nil
}

// Clear forgets every URL.
func (t *concurrentVisitTracker) Clear(context.Context) error {
	t.seen.Clear()
	return nil
}

// pauseController abstracts how the worker waits between requests.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
