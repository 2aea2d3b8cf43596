// Package scheduler triggers full reindexing on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/index"
)

const startTimeout = 30 * time.Second

// Starter begins an indexing run and returns its id.
type Starter interface {
	Start(ctx context.Context) (string, error)
}

// Reindexer calls Starter.Start every interval. A run still in progress is left alone.
type Reindexer struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// New registers the reindex job. Call Start to begin ticking.
func New(starter Starter, interval time.Duration, logger *zap.Logger) (*Reindexer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("reindex interval must be > 0, got %s", interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	r := &Reindexer{scheduler: s, logger: logger}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { r.trigger(starter) }),
		gocron.WithName("reindex"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create reindex job: %w", err)
	}
	return r, nil
}

func (r *Reindexer) trigger(starter Starter) {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	runID, err := starter.Start(ctx)
	switch {
	case errors.Is(err, index.ErrAlreadyRunning):
		r.logger.Debug("scheduled reindex skipped, indexing already running")
	case err != nil:
		r.logger.Error("scheduled reindex failed to start", zap.Error(err))
	default:
		r.logger.Info("scheduled reindex started", zap.String("run_id", runID))
	}
}

// Start begins scheduling. The first run happens one interval after Start.
func (r *Reindexer) Start() {
	r.scheduler.Start()
}

// Shutdown stops scheduling and waits for a running trigger to return.
func (r *Reindexer) Shutdown() error {
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}
