package scraper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

var errTest = errors.New("boom")

// TestRunNewFragmentsThenIdempotent covers first-run notification of every
// fragment and a silent second run over unchanged content.
func TestRunNewFragmentsThenIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.set("https://example.com", "<li>meow</li><li>cactus</li><li>meow mathew</li>")
	tgt := target.Target{URI: "https://example.com", Text: "meow"}

	report, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Equal(t, 2, report.Notifications)
	require.Equal(t, []string{"Found match: meow", "Found match: meow mathew"}, h.sender.messages())
	require.Equal(t, "meow\nmeow mathew", h.cache.value(tgt.CacheKey()))

	report, err = h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Zero(t, report.Notifications)
	require.Len(t, h.sender.messages(), 2)
}

func TestRunNotifiesOnlyNewFragment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tgt := target.Target{URI: "https://example.com", Text: "job"}
	h.cache.put(tgt.CacheKey(), "job A")
	h.fetcher.set(tgt.URI, "<p>job A</p><p>job B</p>")

	report, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Equal(t, []string{"Found match: job B"}, h.sender.messages())
	require.Equal(t, 1, report.Targets[0].New)
	require.Equal(t, 2, report.Targets[0].Fragments)
	require.Equal(t, "job A\njob B", h.cache.value(tgt.CacheKey()))
}

func TestRunRemovalIsSilent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tgt := target.Target{URI: "https://example.com", Text: "job"}
	h.cache.put(tgt.CacheKey(), "job A\njob B")
	h.fetcher.set(tgt.URI, "<p>job A</p>")

	_, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Empty(t, h.sender.messages())
	require.Equal(t, "job A", h.cache.value(tgt.CacheKey()))
}

func TestRunZeroMatchesClearsCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tgt := target.Target{URI: "https://example.com", Text: "job"}
	h.cache.put(tgt.CacheKey(), "job A")
	h.fetcher.set(tgt.URI, "<p>nothing here</p>")

	_, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Empty(t, h.sender.messages())
	v, ok := h.cache.lookup(tgt.CacheKey())
	require.True(t, ok)
	require.Empty(t, v)
}

// TestRunFailureIsolation checks a failed target is recorded without touching
// its cache entry and without affecting its siblings.
func TestRunFailureIsolation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	t1 := target.Target{URI: "https://one.example", Text: "x"}
	t2 := target.Target{URI: "https://two.example", Text: "x"}
	t3 := target.Target{URI: "https://three.example", Text: "x"}
	h.fetcher.set(t1.URI, "<p>x1</p>")
	h.fetcher.fail(t2.URI, &StatusError{Code: 404, Err: errTest})
	h.fetcher.set(t3.URI, "<p>x3</p>")
	h.cache.put(t2.CacheKey(), "x2")

	targets := []target.Target{t1, t2, t3}
	report, err := h.engine.Run(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failures)
	require.ElementsMatch(t, []string{"Found match: x1", "Found match: x3"}, h.sender.messages())
	require.Equal(t, "x2", h.cache.value(t2.CacheKey()))
	require.ElementsMatch(t, []string{
		"https://one.example|OK",
		"https://two.example|404",
		"https://three.example|OK",
	}, h.recorder.events())

	_, err = h.engine.Run(context.Background(), targets)
	require.NoError(t, err)
	require.Len(t, h.sender.messages(), 2)
}

func TestRunCacheKeyIndependence(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := target.Target{URI: "https://example.com", Text: "apple"}
	b := target.Target{URI: "https://example.com", Text: "banana"}
	h.fetcher.set("https://example.com", "<p>apple pie</p><p>banana bread</p>")

	_, err := h.engine.Run(context.Background(), []target.Target{a, b})
	require.NoError(t, err)
	require.Len(t, h.sender.messages(), 2)

	h.cache.put(a.CacheKey(), "")
	_, err = h.engine.Run(context.Background(), []target.Target{a, b})
	require.NoError(t, err)
	require.Equal(t, []string{"Found match: apple pie"}, h.sender.messages()[2:])
}

// TestRunCacheReadFailureFailsOpen re-notifies every match when history cannot be read.
func TestRunCacheReadFailureFailsOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tgt := target.Target{URI: "https://example.com", Text: "meow"}
	h.cache.put(tgt.CacheKey(), "meow")
	h.cache.getErr = errTest
	h.fetcher.set(tgt.URI, "<p>meow</p>")

	report, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Equal(t, 1, report.Notifications)
	require.Equal(t, 1, h.logs.FilterMessage("cache read failed; treating as empty").Len())
}

func TestRunCacheWriteFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cache.putErr = errTest
	t1 := target.Target{URI: "https://one.example", Text: "x"}
	t2 := target.Target{URI: "https://two.example", Text: "x"}
	h.fetcher.set(t1.URI, "<p>x1</p>")
	h.fetcher.set(t2.URI, "<p>x2</p>")

	report, err := h.engine.Run(context.Background(), []target.Target{t1, t2})
	require.NoError(t, err)
	require.Equal(t, 2, report.Notifications)
	require.Equal(t, 2, h.logs.FilterMessage("cache write failed").Len())
}

func TestRunSendFailureStillWritesCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sender.err = errTest
	tgt := target.Target{URI: "https://example.com", Text: "meow"}
	h.fetcher.set(tgt.URI, "<p>meow</p>")

	report, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Zero(t, report.Notifications)
	require.Equal(t, 1, report.Targets[0].New)
	require.Equal(t, "meow", h.cache.value(tgt.CacheKey()))
}

func TestRunNoTargets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.engine.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoTargets)
	_, ok := h.engine.Last()
	require.False(t, ok)
}

// TestRunFetchesConcurrently ensures slow targets do not serialize the run.
func TestRunFetchesConcurrently(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.delay = 100 * time.Millisecond
	var targets []target.Target
	for _, uri := range []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"} {
		h.fetcher.set(uri, "<p>x</p>")
		targets = append(targets, target.Target{URI: uri, Text: "x"})
	}

	start := time.Now()
	report, err := h.engine.Run(context.Background(), targets)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 350*time.Millisecond)
	require.Len(t, report.Targets, 4)
}

func TestRunAppliesFetchTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.FetchTimeout = 20 * time.Millisecond })
	h.fetcher.block = true
	tgt := target.Target{URI: "https://slow.example", Text: "x"}

	report, err := h.engine.Run(context.Background(), []target.Target{tgt})
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, report.Targets[0].Status)
	require.Equal(t, []string{"https://slow.example|unknown"}, h.recorder.events())
}

func TestRunReportAndSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	h := newHarness(t, func(cfg *Config) {
		cfg.Tracer = tp.Tracer("test")
		cfg.IDs = staticID("run-1")
		cfg.Clock = fixedClock{t: time.Unix(1700000000, 0)}
	})
	h.fetcher.set("https://example.com", "<p>meow</p>")

	report, err := h.engine.Run(context.Background(), []target.Target{{URI: "https://example.com", Text: "meow"}})
	require.NoError(t, err)
	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, time.Unix(1700000000, 0), report.StartedAt)

	last, ok := h.engine.Last()
	require.True(t, ok)
	require.Equal(t, report.RunID, last.RunID)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"scraper.fetch", "scraper.run"}, names)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, newFakeCache(), &fakeSender{}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, newFakeFetcher(), nil, &fakeSender{}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, newFakeFetcher(), newFakeCache(), nil, nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, newFakeFetcher(), newFakeCache(), &fakeSender{}, nil, nil)
	require.NoError(t, err)
}

type harness struct {
	engine   *Engine
	fetcher  *fakeFetcher
	cache    *fakeCache
	sender   *fakeSender
	recorder *fakeRecorder
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	h := &harness{
		fetcher:  newFakeFetcher(),
		cache:    newFakeCache(),
		sender:   &fakeSender{},
		recorder: &fakeRecorder{},
		logs:     logs,
	}
	cfg := Config{Address: "everyone@everyone.com"}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := New(cfg, h.fetcher, h.cache, h.sender, h.recorder, zap.New(core))
	require.NoError(t, err)
	h.engine = engine
	return h
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	delay  time.Duration
	block  bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) set(uri, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[uri] = body
}

func (f *fakeFetcher) fail(uri string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[uri] = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[uri]; ok {
		return "", err
	}
	return f.bodies[uri], nil
}

type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	putErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Put(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *fakeCache) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) value(key string) string {
	v, _ := c.lookup(key)
	return v
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *fakeSender) Send(_ context.Context, address string, _ target.Target, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address != "everyone@everyone.com" {
		return errors.New("unexpected address " + address)
	}
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, message)
	return nil
}

func (s *fakeSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

type fakeRecorder struct {
	mu  sync.Mutex
	evs []string
}

func (r *fakeRecorder) Increment(target, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, target+"|"+status)
}

func (r *fakeRecorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.evs...)
}

type staticID string

func (s staticID) NewID() (string, error) { return string(s), nil }

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }
