package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProviderWithoutExporter(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "scrapewatch-test", "")
	require.NoError(t, err)
	defer func() { require.NoError(t, tp.Shutdown(ctx)) }()

	require.Same(t, tp, otel.GetTracerProvider())
	_, span := otel.Tracer("test").Start(ctx, "fetch")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracerProviderWithEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "scrapewatch-test", "http://127.0.0.1:4318/v1/traces")
	require.NoError(t, err)
	require.NotNil(t, tp)
	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = tp.Shutdown(shutdownCtx)
}
