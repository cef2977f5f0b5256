package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scrapewatch/internal/metrics"
)

// PrometheusSink exports request counters via Prometheus.
type PrometheusSink struct {
	requests *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapewatch_requests_total",
			Help: "Fetch attempts partitioned by site and status.",
		}, []string{"site", "status"}),
	}
	if err := reg.Register(s.requests); err != nil {
		return nil, fmt.Errorf("register metrics collector: %w", err)
	}
	return s, nil
}

// Consume updates the counters using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []metrics.Event) error {
	for _, evt := range batch {
		if evt.Kind != metrics.KindIncRequest {
			continue
		}
		s.requests.WithLabelValues(metrics.SanitizeSite(evt.Target), evt.Status).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
