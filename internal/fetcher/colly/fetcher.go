// Package collyfetcher implements the page Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/scraper"
)

const defaultTimeout = 15 * time.Second

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are added to every request.
	Headers http.Header
	// Limiter is consulted before each request. Optional.
	Limiter Waiter
	// MaxBodySize caps the bytes read from a response. Zero means unlimited.
	MaxBodySize int
	Logger  *zap.Logger
}

// Fetcher implements scraper.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is filled in by the collector callbacks of a single Fetch.
type fetchState struct {
	body      []byte
	status    int
	truncated bool
	err       error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize < 0 {
		cfg.MaxBodySize = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, transport: newHTTPTransport(), logger: logger}
}

// Fetch performs a single HTTP GET and returns the body as text. Non-2xx
// responses and transport failures are reported as *scraper.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, uri); err != nil {
			return "", &scraper.StatusError{Err: err}
		}
	}
	state := &fetchState{}
	collector := f.buildCollector(ctx, state)
	if err := f.runCollector(ctx, collector, uri, state); err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(state.body), "\uFFFD"), nil
}

func (f *Fetcher) buildCollector(ctx context.Context, state *fetchState) *colly.Collector {
	// Each fetch gets its own collector so the per-request timeout is not
	// shared between concurrent fetches. The transport and its connection
	// pool are shared.
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	collector.WithTransport(f.transport)
	// Error statuses reach OnResponse and are classified there.
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodySize
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		if r.StatusCode < 200 || r.StatusCode > 299 {
			state.err = fmt.Errorf("unexpected status %d: %s", r.StatusCode, http.StatusText(r.StatusCode))
			return
		}
		state.body = append([]byte(nil), r.Body...)
		state.truncated = f.cfg.MaxBodySize > 0 && len(state.body) >= f.cfg.MaxBodySize
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, uri string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(uri)
	}()

	select {
	case <-ctx.Done():
		return &scraper.StatusError{Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if err == nil {
			err = state.err
		}
		if err != nil {
			f.logger.Debug("fetch failed", zap.String("uri", uri), zap.Int("status", state.status), zap.Error(err))
			return &scraper.StatusError{Code: statusFromError(state.status, err), Err: err}
		}
		if state.truncated {
			f.logger.Warn("response body truncated",
				zap.String("uri", uri),
				zap.Int("max_body_size", f.cfg.MaxBodySize),
			)
		}
		return nil
	}
}

// statusFromError keeps a captured HTTP status unless the failure happened
// before any response was received.
func statusFromError(status int, err error) int {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return 0
	}
	return status
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if f.cfg.Headers == nil {
		return
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
