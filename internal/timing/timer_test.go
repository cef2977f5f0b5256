package timing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type record struct {
	label   string
	elapsed time.Duration
	fields  int
}

type recordingObserver struct {
	mu      sync.Mutex
	records []record
}

func (r *recordingObserver) ObserveDuration(label string, elapsed time.Duration, fields ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record{label: label, elapsed: elapsed, fields: len(fields)})
}

func (r *recordingObserver) Records() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record(nil), r.records...)
}

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func TestTimerStopReportsElapsed(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	clk := &stepClock{t: time.Unix(100, 0), step: 250 * time.Millisecond}
	timer := startWithClock(obs, "fetch", clk.Now, zap.String("uri", "https://example.com"))

	require.Equal(t, 250*time.Millisecond, timer.Stop())
	require.Equal(t, []record{{label: "fetch", elapsed: 250 * time.Millisecond, fields: 1}}, obs.Records())
}

func TestTimerStopFiresOnce(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	timer := Start(obs, "scrape")

	first := timer.Stop()
	second := timer.Stop()
	require.Equal(t, first, second)
	require.Len(t, obs.Records(), 1)
}

func TestTimerStopConcurrent(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	timer := Start(obs, "scrape")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Stop()
		}()
	}
	wg.Wait()
	require.Len(t, obs.Records(), 1)
}

func TestTimerFiresOnErrorReturnAndPanic(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	failing := func() error {
		defer Start(obs, "failing").Stop()
		return errors.New("boom")
	}
	require.Error(t, failing())

	panicking := func() {
		defer Start(obs, "panicking").Stop()
		panic("boom")
	}
	require.Panics(t, panicking)

	records := obs.Records()
	require.Len(t, records, 2)
	require.Equal(t, "failing", records[0].label)
	require.Equal(t, "panicking", records[1].label)
}

func TestTimerNilObserver(t *testing.T) {
	t.Parallel()

	timer := Start(nil, "quiet")
	require.Equal(t, "quiet", timer.Label())
	require.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}

func TestLogObserverWritesRecord(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	obs := NewLogObserver(zap.New(core))
	obs.ObserveDuration("parse_document", 3*time.Millisecond, zap.String("uri", "u"))

	entries := logs.FilterMessage("timer").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, "parse_document", ctx["label"])
	require.Equal(t, "u", ctx["uri"])
}

func TestHistogramObserverRecordsStage(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs, err := NewHistogramObserver(reg)
	require.NoError(t, err)

	Multi{obs, nil}.ObserveDuration("fetch", 20*time.Millisecond)
	obs.ObserveDuration("fetch", 30*time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(obs.durations, "scrapewatch_stage_duration_seconds"))

	_, err = NewHistogramObserver(reg)
	require.Error(t, err)
}
