// Package server builds the application's dependencies and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/api"
	"github.com/JakeFAU/site-search/internal/clock"
	"github.com/JakeFAU/site-search/internal/config"
	"github.com/JakeFAU/site-search/internal/crawler"
	collyfetcher "github.com/JakeFAU/site-search/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/site-search/internal/fetcher/headless"
	"github.com/JakeFAU/site-search/internal/headless/detector"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/indexer"
	"github.com/JakeFAU/site-search/internal/indexing"
	"github.com/JakeFAU/site-search/internal/lemma"
	"github.com/JakeFAU/site-search/internal/linkfilter"
	"github.com/JakeFAU/site-search/internal/logging"
	"github.com/JakeFAU/site-search/internal/metrics"
	"github.com/JakeFAU/site-search/internal/policy/ratelimit"
	"github.com/JakeFAU/site-search/internal/scheduler"
	"github.com/JakeFAU/site-search/internal/search"
	"github.com/JakeFAU/site-search/internal/snippet"
	memorystore "github.com/JakeFAU/site-search/internal/storage/memory"
	pgstore "github.com/JakeFAU/site-search/internal/storage/postgres"
	redisstore "github.com/JakeFAU/site-search/internal/storage/redis"
	sqlitestore "github.com/JakeFAU/site-search/internal/storage/sqlite"
)

// ErrShutdown is the cancellation cause recorded on sites still crawling when the process stops.
var ErrShutdown = errors.New("indexing interrupted by shutdown")

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     index.Store
	redis     *goredis.Client
	headless  *headlessfetcher.Fetcher
	indexing  *indexing.Service
	apiServer *api.Server
	reindexer *scheduler.Reindexer
	stopRuns  context.CancelFunc
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("sites", len(cfg.Sites)),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("visited", cfg.Crawler.VisitedBackend),
		zap.Bool("render_javascript", cfg.Crawler.RenderJavaScript),
	)

	if app.store, err = setupStore(ctx, app); err != nil {
		return nil, app.abort(err)
	}
	visited, err := setupVisited(ctx, app)
	if err != nil {
		return nil, app.abort(err)
	}
	fetcher, err := setupFetcher(app)
	if err != nil {
		return nil, app.abort(err)
	}

	analyzer := lemma.New()
	pages := indexer.New(fetcher, app.store, analyzer, cfg.Crawler.Referer, logger.Named("indexer"))
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.RateLimitRPS, Burst: cfg.Crawler.RateLimitBurst})
	filter := linkfilter.New(linkfilter.WithExtraExtensions(cfg.Crawler.ExtraExtensions...))
	worker := crawler.NewWorker(pages, filter, limiter, cfg.Crawler.Delay, logger.Named("crawler"))
	coordinator := crawler.NewCoordinator(worker, visited, app.store, clock.System{}, crawler.CoordinatorConfig{
		Parallelism: cfg.Crawler.Parallelism,
		Timeout:     cfg.Crawler.Timeout,
	}, logger.Named("crawler"))

	// crawls outlive the request that starts them but not the process
	runCtx, stopRuns := context.WithCancel(context.WithoutCancel(ctx))
	app.stopRuns = stopRuns
	app.indexing = indexing.New(runCtx, app.store, coordinator, pages, clock.System{}, cfg.Sites, logger.Named("indexing"))

	planner := search.NewPlanner(app.store, analyzer, snippet.New(analyzer), cfg.Search.DefaultLimit, logger.Named("search"))
	app.apiServer = api.NewServer(app.indexing, planner, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MetricsEnabled: cfg.Metrics.Enabled,
	}, logger.Named("api"))

	if cfg.Schedule.Enabled {
		app.reindexer, err = scheduler.New(app.indexing, cfg.Schedule.Interval, logger.Named("scheduler"))
		if err != nil {
			return nil, app.abort(err)
		}
		logger.Info("scheduled reindex enabled", zap.Duration("interval", cfg.Schedule.Interval))
	}
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

func setupStore(ctx context.Context, app *App) (index.Store, error) {
	switch app.cfg.Storage.Backend {
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, app.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.logger.Info("using sqlite index store", zap.String("path", app.cfg.Storage.SQLitePath))
		return store, nil
	case config.BackendPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      app.cfg.Storage.DSN,
			MaxConns: app.cfg.Storage.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		app.logger.Info("using postgres index store")
		return store, nil
	default:
		app.logger.Info("using in-memory index store")
		return memorystore.NewStore(), nil
	}
}

func setupVisited(ctx context.Context, app *App) (crawler.VisitedFactory, error) {
	if app.cfg.Crawler.VisitedBackend != config.BackendRedis {
		return crawler.NewMemoryVisited, nil
	}
	client, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     app.cfg.Redis.Addr,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	app.redis = client
	ttl := app.cfg.Crawler.VisitedTTL
	app.logger.Info("using redis visited sets", zap.String("addr", app.cfg.Redis.Addr), zap.Duration("ttl", ttl))
	return func(_ context.Context, runID string, site index.Site) (crawler.VisitedSet, error) {
		return redisstore.NewVisitedSet(client, runID+":"+site.URL, ttl), nil
	}, nil
}

func setupFetcher(app *App) (crawler.Fetcher, error) {
	cfg := app.cfg
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.RequestTimeout,
		MaxBodySize:   cfg.Crawler.MaxBodySize,
	})
	if !cfg.Crawler.RenderJavaScript && !cfg.Headless.Promote {
		app.logger.Info("using colly fetcher", zap.String("user_agent", cfg.Crawler.UserAgent))
		return plain, nil
	}

	rendering, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Headless.NavigationTimeout,
		SettleDelay:       cfg.Headless.SettleDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	app.headless = rendering
	if cfg.Crawler.RenderJavaScript {
		app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		return rendering, nil
	}
	app.logger.Info("using colly fetcher with headless promotion",
		zap.Int("max_parallel", cfg.Headless.MaxParallel),
		zap.Int("min_words", cfg.Headless.PromoteMinWords),
	)
	heuristic := detector.NewHeuristic(cfg.Headless.PromoteMinWords)
	return detector.NewFetcher(plain, rendering, heuristic, app.logger.Named("fetcher")), nil
}

// Run serves the HTTP API until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.reindexer != nil {
		a.reindexer.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// RunIndex performs one full indexing run in the foreground and returns once every site
// has a final status. It fails if any site ended Failed.
func (a *App) RunIndex(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID, err := a.indexing.Start(ctx)
	if err != nil {
		return errors.Join(fmt.Errorf("start indexing: %w", err), a.Close(context.Background()))
	}
	a.logger.Info("indexing run started", zap.String("run_id", runID))

	if err := a.indexing.Wait(ctx); err != nil {
		a.logger.Warn("indexing interrupted", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.indexing.Shutdown(shutdownCtx, ErrShutdown); err != nil {
		a.logger.Warn("indexing shutdown incomplete", zap.Error(err))
	}
	runErr := a.reportRun(shutdownCtx)
	return errors.Join(runErr, a.Close(shutdownCtx))
}

func (a *App) reportRun(ctx context.Context) error {
	stats, err := a.indexing.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("read statistics: %w", err)
	}
	failed := 0
	for _, site := range stats.Detailed {
		fields := []zap.Field{
			zap.String("site", site.URL),
			zap.String("status", string(site.Status)),
			zap.Int("pages", site.Pages),
			zap.Int("lemmas", site.Lemmas),
		}
		if site.Status == index.StatusFailed {
			failed++
			a.logger.Warn("site indexing failed", append(fields, zap.String("error", site.Error))...)
			continue
		}
		a.logger.Info("site indexed", fields...)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sites failed to index", failed, len(stats.Detailed))
	}
	return nil
}

// Close stops background work and releases every connection.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.reindexer != nil {
		if err := a.reindexer.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.indexing != nil {
		if err := a.indexing.Shutdown(ctx, ErrShutdown); err != nil {
			errs = append(errs, fmt.Errorf("stop indexing: %w", err))
		}
	}
	if a.stopRuns != nil {
		a.stopRuns()
	}
	a.closeInfrastructure(&errs)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(errs *[]error) {
	if a.headless != nil {
		if err := a.headless.Close(); err != nil {
			*errs = append(*errs, fmt.Errorf("close headless fetcher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			*errs = append(*errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			*errs = append(*errs, fmt.Errorf("close store: %w", err))
		}
	}
}

// abort releases whatever Build created before err.
func (a *App) abort(err error) error {
	var errs []error
	a.closeInfrastructure(&errs)
	return errors.Join(append([]error{err}, errs...)...)
}
