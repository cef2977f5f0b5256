package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/target"
	"github.com/JakeFAU/scrapewatch/internal/timing"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultSendTimeout  = 10 * time.Second
	tracerName          = "github.com/JakeFAU/scrapewatch/internal/scraper"
)

// Config controls Engine behavior.
type Config struct {
	// Address is passed to the Sender with every notification.
	Address string
	// FetchTimeout bounds each target's fetch (default 15s).
	FetchTimeout time.Duration
	// SendTimeout bounds each notification (default 10s).
	SendTimeout time.Duration
	// Observer receives stage timings. Optional.
	Observer timing.Observer
	// Tracer creates run and fetch spans. Defaults to the global provider.
	Tracer trace.Tracer
	// IDs generates run IDs. Optional.
	IDs IDGenerator
	// Clock stamps reports. Defaults to the wall clock.
	Clock Clock
}

// Engine runs scans over a list of targets. Only the Engine's consumer
// goroutine reads or writes the cache, and Run calls never overlap.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	cache    Cache
	sender   Sender
	recorder Recorder
	logger   *zap.Logger

	runMu  sync.Mutex
	lastMu sync.RWMutex
	last   *Report
}

type fetchResult struct {
	target target.Target
	body   string
	status string
	err    error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type noopRecorder struct{}

func (noopRecorder) Increment(string, string) {}

// New constructs an Engine.
func New(
	cfg Config,
	fetcher Fetcher,
	cache Cache,
	sender Sender,
	recorder Recorder,
	logger *zap.Logger,
) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		cache:    cache,
		sender:   sender,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Run performs one complete scan: every target is fetched concurrently and
// each result is diffed, notified and cached by a single consumer. Per-target
// failures are recorded in the Report and never abort the run; the only
// error is ErrNoTargets.
func (e *Engine) Run(ctx context.Context, targets []target.Target) (Report, error) {
	if len(targets) == 0 {
		return Report{}, ErrNoTargets
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()

	report := Report{RunID: e.newRunID(), StartedAt: e.cfg.Clock.Now()}
	logger := e.logger.With(zap.String("run_id", report.RunID))
	ctx, span := e.cfg.Tracer.Start(ctx, "scraper.run",
		trace.WithAttributes(
			attribute.String("run_id", report.RunID),
			attribute.Int("targets", len(targets)),
		))
	defer span.End()
	defer timing.Start(e.cfg.Observer, "run", zap.String("run_id", report.RunID)).Stop()

	logger.Info("run started", zap.Int("targets", len(targets)))

	results := make(chan fetchResult, len(targets))
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t target.Target) {
			defer wg.Done()
			results <- e.fetch(ctx, t)
		}(t)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		tr := e.process(ctx, logger, res)
		report.Targets = append(report.Targets, tr)
		report.Notifications += tr.Notified
		if tr.Status != StatusOK {
			report.Failures++
		}
	}

	report.FinishedAt = e.cfg.Clock.Now()
	span.SetAttributes(
		attribute.Int("notifications", report.Notifications),
		attribute.Int("failures", report.Failures),
	)
	logger.Info("run finished",
		zap.Int("targets", len(report.Targets)),
		zap.Int("notifications", report.Notifications),
		zap.Int("failures", report.Failures),
	)
	e.setLast(report)
	return report, nil
}

// Last returns the report of the most recent completed run.
func (e *Engine) Last() (Report, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return Report{}, false
	}
	return *e.last, true
}

func (e *Engine) setLast(r Report) {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	e.last = &r
}

func (e *Engine) newRunID() string {
	if e.cfg.IDs == nil {
		return ""
	}
	id, err := e.cfg.IDs.NewID()
	if err != nil {
		e.logger.Warn("generate run id failed", zap.Error(err))
		return ""
	}
	return id
}

// fetch runs on a per-target goroutine and never touches the cache.
func (e *Engine) fetch(ctx context.Context, t target.Target) fetchResult {
	ctx, span := e.cfg.Tracer.Start(ctx, "scraper.fetch",
		trace.WithAttributes(attribute.String("uri", t.URI)))
	defer span.End()
	defer timing.Start(e.cfg.Observer, "fetch", zap.String("uri", t.URI)).Stop()

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	body, err := e.fetcher.Fetch(fetchCtx, t.URI)
	status := StatusOf(err)
	span.SetAttributes(
		attribute.String("status", status),
		attribute.Int("resp_size", len(body)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return fetchResult{target: t, status: status, err: err}
	}
	return fetchResult{target: t, body: body, status: status}
}

// process runs the extract, diff, notify and cache-write pipeline for one
// result. It is only ever called from Run's consumer loop.
func (e *Engine) process(ctx context.Context, logger *zap.Logger, res fetchResult) TargetResult {
	t := res.target
	out := TargetResult{URI: t.URI, Text: t.Text, Status: res.status}
	logger = logger.With(zap.String("uri", t.URI), zap.String("text", t.Text))

	e.recorder.Increment(t.URI, res.status)
	if res.err != nil {
		out.Error = res.err.Error()
		logger.Warn("fetch failed", zap.String("status", res.status), zap.Error(res.err))
		return out
	}
	defer timing.Start(e.cfg.Observer, "process", zap.String("uri", t.URI)).Stop()

	fragments := ExtractFragments(res.body, t.Text)
	out.Fragments = len(fragments)

	key := t.CacheKey()
	previous := e.previous(ctx, logger, key)
	for _, frag := range fragments {
		if _, seen := previous[frag]; seen {
			continue
		}
		out.New++
		if e.notify(ctx, logger, t, frag) {
			out.Notified++
		}
	}

	if err := e.cache.Put(ctx, key, EncodeFragments(fragments)); err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	logger.Debug("target processed",
		zap.Int("fragments", out.Fragments),
		zap.Int("new", out.New),
		zap.Int("notified", out.Notified),
	)
	return out
}

// previous loads the cached fragment set. Read failures are treated as an
// empty history.
func (e *Engine) previous(ctx context.Context, logger *zap.Logger, key string) map[string]struct{} {
	value, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed; treating as empty", zap.String("key", key), zap.Error(err))
		return map[string]struct{}{}
	}
	if !ok {
		return map[string]struct{}{}
	}
	return DecodeFragments(value)
}

func (e *Engine) notify(ctx context.Context, logger *zap.Logger, t target.Target, fragment string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()
	message := fmt.Sprintf("Found match: %s", fragment)
	if err := e.sender.Send(sendCtx, e.cfg.Address, t, message); err != nil {
		logger.Warn("notification failed", zap.String("fragment", fragment), zap.Error(err))
		return false
	}
	return true
}
