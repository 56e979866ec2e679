package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sourcegraph/conc"

	"github.com/matchwatch/pipeline/external/apifootball"
	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/interfaces/httpapi"
	"github.com/matchwatch/pipeline/internal/observability"
	idgen "github.com/matchwatch/pipeline/internal/platform/id"
	"github.com/matchwatch/pipeline/internal/platform/logging"
	"github.com/matchwatch/pipeline/internal/platform/ratelimit"
	"github.com/matchwatch/pipeline/internal/platform/resilience"
	"github.com/matchwatch/pipeline/internal/scheduler"
	"github.com/matchwatch/pipeline/internal/usecase"
)

// App owns everything with a lifecycle: the scheduler, the operator server,
// the database pool, and the telemetry exporters. Build with New, drive
// with Run.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	db       *sqlx.DB
	governor *ratelimit.Governor
	sched    *scheduler.Scheduler
	server   *http.Server
	pprofSrv *http.Server

	httpLogger      *slog.Logger
	shutdownTracing func(context.Context) error
	stopProfiler    func() error
}

// New wires the full pipeline from config: stores, governed upstream
// client, services, scheduler, and the operator channel. Nothing starts
// running until Run.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	level, err := logging.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger := logging.NewJSON(level)
	logging.SetDefault(logger)

	httpLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(level),
	}))
	slog.SetDefault(httpLogger)

	a := &App{cfg: cfg, logger: logger, httpLogger: httpLogger}

	a.shutdownTracing, err = observability.InitUptrace(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init uptrace: %w", err)
	}
	a.stopProfiler, err = observability.InitPyroscope(cfg, httpLogger)
	if err != nil {
		return nil, fmt.Errorf("init pyroscope: %w", err)
	}
	a.pprofSrv, err = observability.StartPprofServer(cfg, httpLogger)
	if err != nil {
		return nil, fmt.Errorf("start pprof: %w", err)
	}

	var repos Repositories
	if cfg.Database.URL != "" {
		if err := applyMigrations(cfg.Database, logger); err != nil {
			return nil, err
		}
		a.db, err = openDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		repos = newPostgresRepositories(a.db)
	} else {
		logger.Warn("database.url empty, using in-memory stores")
		repos = newMemoryRepositories()
	}

	a.governor = ratelimit.NewGovernor(ratelimit.Config{
		PerMinute:              cfg.RateLimits.PerMinute,
		DailyLimit:             cfg.RateLimits.DailyLimit,
		EmergencyStopThreshold: cfg.RateLimits.EmergencyStopThreshold,
	})

	client := apifootball.NewClient(apifootball.ClientConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		Timeout:        cfg.Upstream.Timeout.Std(),
		MaxRetries:     cfg.Upstream.MaxRetries,
		BackoffBase:    cfg.Upstream.BackoffBase.Std(),
		BackoffCeiling: cfg.Upstream.BackoffCeiling.Std(),
		Logger:         logger,
		CircuitBreaker: resilience.DefaultCircuitBreakerConfig(),
		Governor:       a.governor,
		Archive:        repos.RawData,
	})

	transform := usecase.NewTransformService(
		repos.League, repos.Team, repos.Catalog, repos.Fixture,
		repos.Standings, repos.Injury, repos.TopScorers, repos.TeamStats,
		logger,
	)
	resolver := usecase.NewResolverService(client, transform, repos.League, repos.Team, repos.Tracking, logger)
	scope := usecase.NewScopeService(cfg.ScopePolicy, repos.League, logger)
	ingest := usecase.NewIngestService(&a.cfg, client, transform, resolver, scope, repos.Fixture, repos.Standings, logger)
	backfill := usecase.NewBackfillService(&a.cfg, repos.Tracking, scope, ingest, logger)
	reconcile := usecase.NewReconcileService(&a.cfg, repos.Fixture, ingest, logger)
	verifier := usecase.NewVerifierService(&a.cfg, repos.Fixture, ingest, a.governor, logger)
	standingsRefresh := usecase.NewStandingsRefreshService(&a.cfg, repos.Tracking, scope, ingest, logger)
	coverageSvc := usecase.NewCoverageService(
		&a.cfg, repos.Fixture,
		repos.Standings, repos.Injury, repos.TopScorers, repos.TeamStats,
		repos.RawData, repos.Coverage, scope,
		logger,
	)

	journal := scheduler.NewJournal(0, idgen.NewRandomGenerator())
	a.sched, err = scheduler.New(&a.cfg, scheduler.Runners{
		Ingest:           ingest,
		Backfill:         backfill,
		Reconcile:        reconcile,
		Verifier:         verifier,
		StandingsRefresh: standingsRefresh,
		Coverage:         coverageSvc,
	}, journal, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	handler := httpapi.NewHandler(a.sched, a.governor, backfill, repos.Coverage, repos.RawData, httpLogger)
	a.server = &http.Server{
		Addr:         cfg.Operator.HTTPAddr,
		Handler:      httpapi.NewRouter(handler, cfg.Operator.AuthToken, httpLogger),
		ReadTimeout:  cfg.Operator.ReadTimeout.Std(),
		WriteTimeout: cfg.Operator.WriteTimeout.Std(),
	}

	return a, nil
}

// Run starts the scheduler and the operator server, then blocks until ctx
// is cancelled or the server dies. Shutdown is ordered: stop firing jobs,
// drain HTTP, close the pool, flush telemetry.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.sched.Start(ctx)

	var wg conc.WaitGroup
	wg.Go(func() {
		a.logger.Info("operator server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("operator server failed", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	a.logger.Info("shutting down")

	a.sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("operator server shutdown failed", "error", err)
	}
	wg.Wait()

	a.close(shutdownCtx)
	return nil
}

func (a *App) close(ctx context.Context) {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	if err := observability.StopPprofServer(a.pprofSrv, a.httpLogger, 5*time.Second); err != nil {
		a.logger.Warn("stop pprof server", "error", err)
	}
	if a.stopProfiler != nil {
		if err := a.stopProfiler(); err != nil {
			a.logger.Warn("stop profiler", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("shutdown tracing", "error", err)
		}
	}
	_ = a.logger.Sync()
}

// slogLevel maps a zap level onto the slog scale. Both treat info as zero;
// zap steps by one where slog steps by four.
func slogLevel(level logging.Level) slog.Level {
	return slog.Level(int(level) * 4)
}
