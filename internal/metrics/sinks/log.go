package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/metrics"
)

// LogSink emits structured logs for debugging request streams.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []metrics.Event) error {
	for _, evt := range batch {
		s.logger.Info("metrics event",
			zap.Time("ts", evt.TS),
			zap.String("kind", evt.Kind),
			zap.String("target", evt.Target),
			zap.String("status", evt.Status),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
