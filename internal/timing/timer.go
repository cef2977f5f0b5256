// Package timing measures wall-clock time of a scope and reports it once,
// on whatever path the scope exits by.
//
// Typical usage:
//
//	defer timing.Start(obs, "parse_document", zap.String("uri", uri)).Stop()
package timing

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer receives one timing record per stopped Timer.
type Observer interface {
	ObserveDuration(label string, elapsed time.Duration, fields ...zap.Field)
}

// Timer records the time elapsed since Start. It reports to its Observer
// exactly once, on the first call to Stop.
type Timer struct {
	obs    Observer
	label  string
	fields []zap.Field
	start  time.Time
	now    func() time.Time

	once    sync.Once
	elapsed time.Duration
}

// Start begins timing label. A nil Observer yields a Timer that only measures.
func Start(obs Observer, label string, fields ...zap.Field) *Timer {
	return startWithClock(obs, label, time.Now, fields...)
}

func startWithClock(obs Observer, label string, now func() time.Time, fields ...zap.Field) *Timer {
	return &Timer{
		obs:    obs,
		label:  label,
		fields: fields,
		start:  now(),
		now:    now,
	}
}

// Stop computes the elapsed time and emits it. Later calls return the same
// duration without emitting again.
func (t *Timer) Stop() time.Duration {
	t.once.Do(func() {
		t.elapsed = t.now().Sub(t.start)
		if t.elapsed < 0 {
			t.elapsed = 0
		}
		if t.obs != nil {
			t.obs.ObserveDuration(t.label, t.elapsed, t.fields...)
		}
	})
	return t.elapsed
}

// Label returns the label the timer reports under.
func (t *Timer) Label() string {
	return t.label
}
