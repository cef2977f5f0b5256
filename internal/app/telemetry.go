package app

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/JakeFAU/scrapewatch/internal/config"
	"github.com/JakeFAU/scrapewatch/internal/telemetry"
)

func telemetryProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "scrapewatch"
	}
	tp, err := telemetry.InitTracerProvider(ctx, name, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	return tp, nil
}
