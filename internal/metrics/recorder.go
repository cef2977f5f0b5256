package metrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Recorder.
//   - BufferSize: size of the internal channel (default 4096).
//   - FlushBytes: flush once the encoded batch exceeds this many bytes (default 256).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 5s).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - Clock: timestamps events (defaults to the wall clock).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize   int
	FlushBytes   int
	MaxBatchWait time.Duration
	SinkTimeout  time.Duration
	Clock        Clock
	Logger       *zap.Logger
}

const (
	defaultBufferSize   = 4096
	defaultFlushBytes   = 256
	defaultMaxBatchWait = 5 * time.Second
	defaultSinkTimeout  = 10 * time.Second
	dropLogInterval     = 5 * time.Second
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Recorder accepts events from any number of goroutines and hands them to a
// single background writer. It never blocks callers.
type Recorder struct {
	cfg         Config
	sinks       []Sink
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropWarning rate.Sometimes
	dropped     atomic.Int64
	closed      atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewRecorder initializes a Recorder and starts the background writer using
// the supplied sinks. The returned Recorder is immediately ready to accept events.
func NewRecorder(cfg Config, sinks ...Sink) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushBytes <= 0 {
		cfg.FlushBytes = defaultFlushBytes
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		events:      make(chan Event, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		dropWarning: rate.Sometimes{Interval: dropLogInterval},
	}
	go r.run()
	return r
}

// Increment records one fetch attempt for target with the given status.
func (r *Recorder) Increment(target, status string) {
	if r == nil {
		return
	}
	r.Record(Event{
		TS:     r.cfg.Clock.Now(),
		Kind:   KindIncRequest,
		Target: target,
		Status: status,
	})
}

// Record enqueues an Event for batching. If the buffer is full the event is
// dropped and a rate-limited warning is logged. Events recorded after Close
// are discarded.
func (r *Recorder) Record(evt Event) {
	if r == nil {
		return
	}
	if r.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		r.logger.Debug("discarding invalid metrics event", zap.Error(err))
		return
	}
	select {
	case r.events <- evt:
	default:
		r.dropped.Add(1)
		r.dropWarning.Do(func() {
			r.logger.Warn("metrics events dropped due to backpressure", zap.Int64("dropped", r.dropped.Swap(0)))
		})
	}
}

// Close stops intake, writes out every queued event, closes the sinks and
// waits for the writer goroutine. Repeated calls only wait.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.closeOnce.Do(func() {
		r.logger.Info("closing metrics recorder")
		r.closed.Store(true)
		r.closeCtx = ctx
		close(r.stopCh)
	})
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("metrics recorder close wait: %w", ctx.Err())
	}
}

// writer is the state owned by the background goroutine.
type writer struct {
	r       *Recorder
	pending []Event
	size    int
	wait    *time.Timer
	armed   bool
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	w := &writer{r: r, pending: make([]Event, 0, 16), wait: time.NewTimer(time.Hour)}
	w.wait.Stop()
	r.logger.Debug("metrics writer started", zap.Int("flush_bytes", r.cfg.FlushBytes))
	for {
		select {
		case evt := <-r.events:
			w.add(evt)
			if !w.armed && len(w.pending) > 0 {
				w.wait.Reset(r.cfg.MaxBatchWait)
				w.armed = true
			}
		case <-w.wait.C:
			w.armed = false
			w.write()
		case <-r.stopCh:
			w.drain()
			r.closeSinks()
			r.logger.Debug("metrics writer finished")
			return
		}
	}
}

// add buffers evt and writes the buffer once it grows past FlushBytes.
func (w *writer) add(evt Event) {
	w.pending = append(w.pending, evt)
	w.size += len(evt.CSV())
	if w.size <= w.r.cfg.FlushBytes {
		return
	}
	w.write()
	if w.armed && !w.wait.Stop() {
		<-w.wait.C
	}
	w.armed = false
}

// drain takes whatever is still queued after intake stopped.
func (w *writer) drain() {
	for {
		select {
		case evt := <-w.r.events:
			w.add(evt)
		default:
			w.write()
			return
		}
	}
}

func (w *writer) write() {
	if len(w.pending) == 0 {
		return
	}
	out := make([]Event, len(w.pending))
	copy(out, w.pending)
	w.pending = w.pending[:0]
	w.size = 0
	for _, sink := range w.r.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.r.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			w.r.logger.Warn("metrics sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (r *Recorder) closeSinks() {
	for _, sink := range r.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(r.closeCtx); err != nil {
			r.logger.Warn("metrics sink close failed", zap.Error(err))
		}
	}
}
