// Package dispatcher runs a fork/join crawl over a fixed pool of workers.
//
// Each handled URL may yield children, which are queued for the same pool. A pending
// counter tracks queued plus in-flight URLs; when it reaches zero the frontier is closed
// and Run returns.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-search/internal/queue/memory"
)

// Handler processes one URL and returns the children to crawl next.
type Handler func(ctx context.Context, url string) ([]string, error)

// Dispatcher fans a crawl frontier out to a pool of workers.
type Dispatcher struct {
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher. A non-positive worker count uses runtime.NumCPU().
func New(workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{workers: workers, logger: logger}
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Run processes seeds and everything they discover, blocking until the frontier is
// exhausted or ctx ends. Handler errors end only their own branch; the first one is
// returned once the run is over. Cancellation is not reported as an error.
func (d *Dispatcher) Run(ctx context.Context, handle Handler, seeds ...string) error {
	if len(seeds) == 0 {
		return nil
	}
	frontier := memory.NewQueue[string]()
	var pending atomic.Int64
	pending.Add(int64(len(seeds)))
	for _, seed := range seeds {
		if err := frontier.Enqueue(ctx, seed); err != nil {
			return fmt.Errorf("seed frontier: %w", err)
		}
	}

	var (
		firstErr error
		errOnce  sync.Once
	)
	done := func() {
		if pending.Add(-1) == 0 {
			frontier.Close()
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for range d.workers {
		group.Go(func() error {
			for {
				url, err := frontier.Dequeue(groupCtx)
				if err != nil {
					if errors.Is(err, memory.ErrClosed) || groupCtx.Err() != nil {
						return nil
					}
					return fmt.Errorf("dequeue: %w", err)
				}

				children, err := handle(groupCtx, url)
				if err != nil && groupCtx.Err() == nil {
					d.logger.Warn("crawl branch failed", zap.String("url", url), zap.Error(err))
					errOnce.Do(func() { firstErr = err })
				}
				for _, child := range children {
					pending.Add(1)
					if err := frontier.Enqueue(groupCtx, child); err != nil {
						pending.Add(-1)
						break
					}
				}
				done()
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return firstErr
}
