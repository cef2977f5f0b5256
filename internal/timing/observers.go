package timing

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// LogObserver writes each timing record as a structured log line.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver wires a zap logger to the Observer interface.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

// ObserveDuration logs the label and elapsed time at info level.
func (o *LogObserver) ObserveDuration(label string, elapsed time.Duration, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("label", label), zap.Duration("elapsed", elapsed))
	all = append(all, fields...)
	o.logger.Info("timer", all...)
}

// HistogramObserver records durations in a Prometheus histogram keyed by
// label. Labels are expected to be low-cardinality stage names; the extra
// zap fields are ignored.
type HistogramObserver struct {
	durations *prometheus.HistogramVec
}

// NewHistogramObserver registers the stage duration histogram against reg.
func NewHistogramObserver(reg prometheus.Registerer) (*HistogramObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scrapewatch_stage_duration_seconds",
		Help:    "Wall time spent per scrape stage.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})
	if err := reg.Register(durations); err != nil {
		return nil, fmt.Errorf("register stage histogram: %w", err)
	}
	return &HistogramObserver{durations: durations}, nil
}

// ObserveDuration records elapsed under the stage label.
func (o *HistogramObserver) ObserveDuration(label string, elapsed time.Duration, _ ...zap.Field) {
	o.durations.WithLabelValues(label).Observe(elapsed.Seconds())
}

// Multi fans a timing record out to several observers.
type Multi []Observer

// ObserveDuration forwards to every non-nil observer in order.
func (m Multi) ObserveDuration(label string, elapsed time.Duration, fields ...zap.Field) {
	for _, obs := range m {
		if obs != nil {
			obs.ObserveDuration(label, elapsed, fields...)
		}
	}
}
