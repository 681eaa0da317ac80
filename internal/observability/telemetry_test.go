package observability_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aelexs/clinic-otp/internal/observability"
)

func TestInitTelemetry_NoEndpoint(t *testing.T) {
	tel, err := observability.InitTelemetry(context.Background(), observability.TelemetryConfig{
		ServiceName:    "otpd",
		ServiceVersion: "0.0.1",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, tel)

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid(), "installed provider should record spans")
	assert.NotEmpty(t, observability.TraceIDFromContext(ctx))
	span.End()

	counter, err := otel.Meter("test").Int64Counter("test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_ShutdownNil(t *testing.T) {
	var tel *observability.Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))

	assert.NoError(t, (&observability.Telemetry{}).Shutdown(context.Background()))
}

func TestTraceIDFromContext(t *testing.T) {
	t.Run("no active span", func(t *testing.T) {
		assert.Empty(t, observability.TraceIDFromContext(context.Background()))
	})

	t.Run("active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
		defer span.End()

		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), observability.TraceIDFromContext(ctx))
	})
}
