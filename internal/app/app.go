// Package app builds and holds the long-lived scrapewatch services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/api"
	"github.com/JakeFAU/scrapewatch/internal/clock/system"
	"github.com/JakeFAU/scrapewatch/internal/config"
	collyfetcher "github.com/JakeFAU/scrapewatch/internal/fetcher/colly"
	"github.com/JakeFAU/scrapewatch/internal/id/uuid"
	"github.com/JakeFAU/scrapewatch/internal/logging"
	"github.com/JakeFAU/scrapewatch/internal/metrics"
	"github.com/JakeFAU/scrapewatch/internal/metrics/sinks"
	"github.com/JakeFAU/scrapewatch/internal/notify/console"
	pubsubsender "github.com/JakeFAU/scrapewatch/internal/notify/pubsub"
	"github.com/JakeFAU/scrapewatch/internal/notify/telegram"
	"github.com/JakeFAU/scrapewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/scrapewatch/internal/scraper"
	"github.com/JakeFAU/scrapewatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/scrapewatch/internal/storage/postgres"
	"github.com/JakeFAU/scrapewatch/internal/storage/sqlite"
	"github.com/JakeFAU/scrapewatch/internal/target"
	"github.com/JakeFAU/scrapewatch/internal/timing"
)

// Store is a closable scraper cache.
type Store interface {
	scraper.Cache
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	registry       *prometheus.Registry
	tracerProvider *sdktrace.TracerProvider
	cache          Store
	sender         scraper.Sender
	senderCloser   io.Closer
	recorder       *metrics.Recorder
	engine         *scraper.Engine
	apiServer      *api.Server
	out            io.Writer
}

// Option customizes Build.
type Option func(*App)

// WithLogger uses logger instead of building one from config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithSender overrides the configured notification backend.
func WithSender(s scraper.Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithOutput sets the writer used by the console sender.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(cfg.Log.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		app.logger = logger
	}
	app.logger.Info("building application dependencies",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("notify_backend", cfg.Notify.Backend),
		zap.String("targets_file", cfg.Scraper.TargetsFile),
	)

	tp, err := telemetryProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	app.tracerProvider = tp

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := app.build(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	var err error
	a.cache, err = OpenCache(ctx, a.cfg.Cache, a.logger)
	if err != nil {
		return err
	}
	if err = a.setupSender(ctx); err != nil {
		return err
	}
	observer, err := a.setupObserver()
	if err != nil {
		return err
	}
	if err = a.setupRecorder(); err != nil {
		return err
	}
	limiter := a.setupLimiter(observer)
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.Scraper.UserAgent,
		Timeout:     a.cfg.Scraper.FetchTimeout,
		Limiter:     limiter,
		MaxBodySize: a.cfg.Scraper.MaxBodySize,
		Logger:      a.logger.Named("fetcher"),
	})
	a.engine, err = scraper.New(
		scraper.Config{
			Address:      a.cfg.Scraper.Address,
			FetchTimeout: a.cfg.Scraper.FetchTimeout,
			SendTimeout:  a.cfg.Scraper.SendTimeout,
			Observer:     observer,
			Tracer:       a.tracerProvider.Tracer("github.com/JakeFAU/scrapewatch/internal/scraper"),
			IDs:          uuid.New(),
			Clock:        system.New(),
		},
		fetcher,
		a.cache,
		a.sender,
		a.recorder,
		a.logger.Named("scraper"),
	)
	if err != nil {
		return fmt.Errorf("engine init failed: %w", err)
	}

	var ready api.Pinger
	if p, ok := a.cache.(api.Pinger); ok {
		ready = p
	}
	a.apiServer = api.NewServer(a, ready, a.registry, a.logger.Named("api"))
	return nil
}

// OpenCache opens the configured cache backend.
func OpenCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.CacheSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("sqlite cache init failed: %w", err)
		}
		logger.Info("using sqlite cache", zap.String("path", cfg.SQLite.Path))
		return store, nil
	case config.CachePostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		logger.Info("using postgres cache", zap.String("table", cfg.Postgres.Table))
		return store, nil
	case config.CacheMemory:
		logger.Warn("using in-memory cache; state is lost on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func (a *App) setupSender(ctx context.Context) error {
	if a.sender != nil {
		return nil
	}
	logger := a.logger.Named("notify")
	switch a.cfg.Notify.Backend {
	case config.NotifyTelegram:
		s, err := telegram.New(telegram.Config{
			Token:  a.cfg.Notify.Telegram.Token,
			ChatID: a.cfg.Notify.Telegram.ChatID,
			APIURL: a.cfg.Notify.Telegram.APIURL,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("telegram sender init failed: %w", err)
		}
		a.sender = s
	case config.NotifyPubSub:
		s, err := pubsubsender.New(ctx, a.cfg.Notify.PubSub.ProjectID, a.cfg.Notify.PubSub.Topic, logger)
		if err != nil {
			return fmt.Errorf("pubsub sender init failed: %w", err)
		}
		a.sender = s
		a.senderCloser = s
		logger.Info("Pub/Sub sender initialized",
			zap.String("project", a.cfg.Notify.PubSub.ProjectID),
			zap.String("topic", a.cfg.Notify.PubSub.Topic),
		)
	default:
		a.sender = console.New(a.out, logger)
	}
	return nil
}

func (a *App) setupObserver() (timing.Observer, error) {
	hist, err := timing.NewHistogramObserver(a.registry)
	if err != nil {
		return nil, fmt.Errorf("timing histogram init failed: %w", err)
	}
	return timing.Multi{timing.NewLogObserver(a.logger.Named("timing")), hist}, nil
}

func (a *App) setupRecorder() error {
	fileSink, err := sinks.NewFileSink(a.cfg.Metrics.Path, a.logger.Named("metrics_file"))
	if err != nil {
		return fmt.Errorf("metrics file sink init failed: %w", err)
	}
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("metrics prometheus sink init failed: %w", err)
	}
	sinkList := []metrics.Sink{fileSink, promSink}
	if a.cfg.Metrics.LogEvents {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger.Named("metrics_log")))
	}
	a.recorder = metrics.NewRecorder(metrics.Config{
		BufferSize:   a.cfg.Metrics.BufferSize,
		FlushBytes:   a.cfg.Metrics.FlushBytes,
		MaxBatchWait: a.cfg.Metrics.MaxBatchWait,
		SinkTimeout:  a.cfg.Metrics.SinkTimeout,
		Clock:        system.New(),
		Logger:       a.logger.Named("metrics"),
	}, sinkList...)
	a.logger.Debug("metrics recorder started",
		zap.String("path", fileSink.Path()),
		zap.Int("sinks", len(sinkList)),
	)
	return nil
}

func (a *App) setupLimiter(observer timing.Observer) collyfetcher.Waiter {
	if a.cfg.Scraper.RateLimitPerHost <= 0 {
		return nil
	}
	a.logger.Info("per-host rate limit enabled",
		zap.Float64("rps", a.cfg.Scraper.RateLimitPerHost),
		zap.Int("burst", a.cfg.Scraper.RateLimitBurst),
	)
	return ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Scraper.RateLimitPerHost,
		DefaultBurst: a.cfg.Scraper.RateLimitBurst,
		Observer:     observer,
	})
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Registry exposes the Prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunOnce reloads the target list and performs one scan.
func (a *App) RunOnce(ctx context.Context) (scraper.Report, error) {
	targets, err := target.LoadFile(a.cfg.Scraper.TargetsFile)
	if err != nil {
		if errors.Is(err, target.ErrEmptyTargetList) {
			return scraper.Report{}, fmt.Errorf("%w: %w", scraper.ErrNoTargets, err)
		}
		return scraper.Report{}, fmt.Errorf("load targets: %w", err)
	}
	report, err := a.engine.Run(ctx, targets)
	if err != nil {
		return report, fmt.Errorf("run scan: %w", err)
	}
	a.logger.Info("scan complete",
		zap.String("run_id", report.RunID),
		zap.Int("targets", len(report.Targets)),
		zap.Int("notifications", report.Notifications),
		zap.Int("failures", report.Failures),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// Last returns the most recent scan report.
func (a *App) Last() (scraper.Report, bool) {
	return a.engine.Last()
}

// Watch scans immediately and then every scraper.interval until ctx is done.
// When server.addr is set the HTTP surface is served alongside. Scan errors
// are logged; the next tick retries.
func (a *App) Watch(ctx context.Context) error {
	if a.cfg.Scraper.Interval <= 0 {
		return errors.New("scraper.interval must be > 0")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *http.Server
	serveErr := make(chan error, 1)
	if a.cfg.Server.Addr != "" {
		srv = &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.String("addr", a.cfg.Server.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				serveErr <- err
				cancel()
			}
		}()
	}

	a.scanAndLog(ctx)
	ticker := time.NewTicker(a.cfg.Scraper.Interval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			a.scanAndLog(ctx)
		}
	}

	a.logger.Info("watch stopped")
	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

func (a *App) scanAndLog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := a.RunOnce(ctx); err != nil {
		a.logger.Error("scan failed", zap.Error(err))
	}
}

// Close tears dependencies down in order: the metrics recorder is drained
// first so no events are lost, then the cache, sender and tracer.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			a.logger.Warn("metrics recorder close failed", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if a.senderCloser != nil {
		if err := a.senderCloser.Close(); err != nil {
			a.logger.Warn("sender close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
