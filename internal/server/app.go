// Package server wires the reminder consistency subsystem together: the
// SoR, the mirror and its live feed, the cache, the sync bridge with its
// retry worker, the scheduler with its cron jobs, and the auditor. The
// background loops only run on the elected leader.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/auditor"
	"github.com/dmitrijs2005/remindsync/internal/server/cache"
	"github.com/dmitrijs2005/remindsync/internal/server/config"
	"github.com/dmitrijs2005/remindsync/internal/server/insights"
	"github.com/dmitrijs2005/remindsync/internal/server/leader"
	"github.com/dmitrijs2005/remindsync/internal/server/mirror"
	"github.com/dmitrijs2005/remindsync/internal/server/push"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/remindsync/internal/server/scheduler"
	"github.com/dmitrijs2005/remindsync/internal/server/services"
	"github.com/dmitrijs2005/remindsync/internal/server/store"
	"github.com/dmitrijs2005/remindsync/internal/server/syncbridge"
	"github.com/jmhodges/clock"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	subscriptionName = "syncbridge"
	auditSkew        = 2 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

type cacheStore interface {
	cache.Store
	io.Closer
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	clk       clock.Clock

	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mirror      *mirror.Store
	cacheStore  cacheStore
	layer       *cache.Layer

	adapter  *store.Adapter
	bridge   *syncbridge.Bridge
	worker   *syncbridge.RetryWorker
	sched    *scheduler.Scheduler
	expander *scheduler.Expander
	fanout   *scheduler.FanOut
	auditor  *auditor.Auditor
	live     *mirror.LiveFeed
	elector  leader.Elector

	Reminders *services.ReminderService
	Users     *services.UserService
}

// NewApp opens every store and builds the components. Nothing runs until
// Run is called.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, logCloser := logging.New(logging.Options{File: c.LogFile, MaxSizeMB: c.LogMaxSizeMB, MaxBackups: 3})
	app := &App{config: c, logger: logger, logCloser: logCloser, clk: clock.New()}

	if err := app.openStores(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) openStores(ctx context.Context) error {
	c := app.config
	var err error

	switch c.StorageBackend {
	case config.BackendPostgres:
		app.db, err = sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		app.repomanager = repomanager.NewPostgresRepositoryManager()
	case config.BackendMemory:
		// Transaction handles only; the memory repositories ignore them.
		app.db, err = sql.Open("sqlite", ":memory:")
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		app.db.SetMaxOpenConns(1)
		app.repomanager = repomanager.NewMemoryRepositoryManager()
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	app.mirror, err = mirror.Open(ctx, c.MirrorDSN, app.clk)
	if err != nil {
		return fmt.Errorf("mirror: %w", err)
	}

	switch c.CacheBackend {
	case config.BackendRedis:
		rs := cache.NewRedisStore(c.RedisAddr)
		if err := rs.Ping(ctx); err != nil {
			app.logger.Warn(ctx, "redis unreachable, reads fall back to the store", "addr", c.RedisAddr, "error", err)
		}
		app.cacheStore = rs
	default:
		app.cacheStore = cache.NewMemoryStore()
	}
	app.layer = cache.NewLayer(app.cacheStore, c.CacheTTL, app.logger)
	return nil
}

func (app *App) build(ctx context.Context) error {
	c, log := app.config, app.logger
	loc := c.Location()

	app.adapter = store.NewAdapter(app.db, app.repomanager, app.clk, c.LeadWindow)
	dispatcher := app.dispatcher(ctx)

	app.sched = scheduler.New(app.adapter, dispatcher, app.layer, app.clk, c.LeadWindow, loc, log)
	queue := app.repomanager.Retries(app.db)
	app.bridge = syncbridge.New(app.adapter, app.mirror, app.layer, app.sched, queue, app.clk,
		syncbridge.Options{MaxAttempts: c.RetryMaxAttempts}, log)
	app.worker = syncbridge.NewRetryWorker(app.bridge, queue, app.clk, c.RetryPollInterval, c.RetryBaseDelay, log)

	app.expander = scheduler.NewExpander(app.adapter, app.sched, app.bridge, app.layer, app.clk, loc, log)
	texts := insights.NewCached(app.generator(ctx), app.layer, c.SuggestionTTL)
	app.fanout = scheduler.NewFanOut(app.adapter, texts, dispatcher, log)

	var archiver auditor.Archiver
	if c.S3Bucket != "" {
		a, err := auditor.NewS3Archiver(ctx, auditor.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return err
		}
		archiver = a
	}
	app.auditor = auditor.New(app.adapter, app.mirror, app.bridge, app.repomanager.Checkpoints(app.db),
		archiver, app.clk, auditSkew, log)

	app.live = mirror.NewLiveFeed(app.mirror, log)

	if err := scheduler.ValidateJobs(app.Jobs()...); err != nil {
		return err
	}

	if c.StorageBackend == config.BackendPostgres {
		app.elector = leader.NewPostgresElector(app.db, c.LeaderLockKey, c.LeaderRetryInterval, log)
		// Followers keep no timers.
		app.sched.Pause()
	} else {
		app.elector = leader.Static{}
	}

	app.Reminders = services.NewReminderService(app.adapter, app.layer, app.bridge, app.sched, c.CacheTTL, log)
	app.Users = services.NewUserService(app.db, app.repomanager)
	return nil
}

func (app *App) dispatcher(ctx context.Context) push.Dispatcher {
	var tg push.Dispatcher
	if app.config.TelegramBotToken != "" {
		t, err := push.NewTelegramDispatcher(app.config.TelegramBotToken)
		if err != nil {
			app.logger.Warn(ctx, "telegram delivery disabled", "error", err)
		} else {
			tg = t
		}
	}
	return push.NewRouter(push.NewExpoDispatcher(app.config.ExpoPushURL), tg)
}

func (app *App) generator(ctx context.Context) insights.Generator {
	if app.config.DeepSeekAPIKey == "" {
		return insights.Static{}
	}
	ds, err := insights.NewDeepSeekGenerator(app.config.DeepSeekAPIKey, app.config.DeepSeekModel)
	if err != nil {
		app.logger.Warn(ctx, "deepseek generator disabled", "error", err)
		return insights.Static{}
	}
	return insights.NewFallback(ds, insights.Static{}, app.logger)
}

func (app *App) Logger() logging.Logger              { return app.logger }
func (app *App) Auditor() *auditor.Auditor            { return app.auditor }
func (app *App) Expander() *scheduler.Expander        { return app.expander }
func (app *App) RetryWorker() *syncbridge.RetryWorker { return app.worker }

// Jobs lists the periodic leader jobs.
func (app *App) Jobs() []scheduler.Job {
	c := app.config
	return []scheduler.Job{
		{Name: "expand-recurring", Spec: c.ExpansionSchedule, Run: func(ctx context.Context) error {
			_, err := app.expander.ExpandAll(ctx)
			return err
		}},
		{Name: "upcoming-sweep", Spec: c.UpcomingSchedule, Run: func(ctx context.Context) error {
			_, err := app.sched.SweepUpcoming(ctx, time.Hour)
			return err
		}},
		{Name: "suggestions", Spec: c.SuggestionSchedule, Run: func(ctx context.Context) error {
			_, err := app.fanout.Run(ctx, insights.KindSuggestion)
			return err
		}},
		{Name: "insights", Spec: c.InsightSchedule, Run: func(ctx context.Context) error {
			_, err := app.fanout.Run(ctx, insights.KindInsight)
			return err
		}},
		{Name: "audit-incremental", Spec: c.AuditSchedule, Run: func(ctx context.Context) error {
			_, err := app.auditor.IncrementalSweep(ctx)
			return err
		}},
		{Name: "audit-full", Spec: c.FullAuditSchedule, Run: func(ctx context.Context) error {
			_, err := app.auditor.FullSweep(ctx)
			return err
		}},
	}
}

// lead runs the leader-only loops until ctx is canceled.
func (app *App) lead(ctx context.Context) {
	log := app.logger
	app.sched.Resume()
	defer app.sched.Pause()

	if n, err := app.sched.Recover(ctx); err != nil {
		log.Error(ctx, "boot recovery failed", "error", err)
	} else {
		log.Info(ctx, "boot recovery finished", "armed", n)
	}

	cr := scheduler.NewCron(app.config.Location(), log)
	if err := cr.Add(ctx, app.Jobs()...); err != nil {
		log.Error(ctx, "cron setup failed", "error", err)
		return
	}
	cr.Start()
	defer cr.Stop()

	sub := mirror.NewSubscription(app.mirror, subscriptionName, mirror.OriginBridge,
		app.clk, app.config.SubscriptionPollInterval, app.bridge.HandleChange, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.worker.Run(ctx)
	}()
	<-ctx.Done()
	wg.Wait()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startLiveServer(ctx context.Context, cancelFunc context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/live", app.live.Handler())
	srv := &http.Server{Addr: app.config.LiveAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "live feed listening", "addr", app.config.LiveAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend, "cache", app.config.CacheBackend)
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startLiveServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		if err := app.elector.Campaign(ctx, app.lead); err != nil {
			app.logger.Error(ctx, "leader election stopped", "error", err)
			cancelFunc()
		}
	}()
	wg.Wait()

	app.logger.Info(context.Background(), "app stopped")
	app.Close()
}

// Close releases every store. Safe on a partially built App.
func (app *App) Close() {
	if app.sched != nil {
		app.sched.Stop()
	}
	if app.mirror != nil {
		_ = app.mirror.Close()
	}
	if app.cacheStore != nil {
		_ = app.cacheStore.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}

// Migrate applies SoR migrations only.
func Migrate(ctx context.Context, c *config.Config) error {
	if c.StorageBackend != config.BackendPostgres {
		return nil
	}
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()
	return repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db)
}
