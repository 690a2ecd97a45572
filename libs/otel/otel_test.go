package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	cfg, err := ConfigFromEnv("appointment-service")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, "appointment-service", cfg.ServiceName)
	assert.Equal(t, "jaeger:4317", cfg.OTLPEndpoint)

	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	_, err = ConfigFromEnv("appointment-service")
	assert.Error(t, err)
	t.Setenv("OTEL_SAMPLING_RATIO", "1")

	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	cfg, err = ConfigFromEnv("appointment-service")
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/json")
	_, err = ConfigFromEnv("appointment-service")
	assert.Error(t, err)
}

func TestCarrierRoundTripsSpanContext(t *testing.T) {
	ctx := context.Background()
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Setup(ctx, Config{ServiceName: "test", Enabled: true, SampleRatio: 1, Exporter: exp})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(ctx) })

	assert.Equal(t, Carrier{}, CarrierFrom(ctx))
	assert.Equal(t, ctx, Carrier{}.Context(ctx))

	spanCtx, span := Tracer("test").Start(ctx, "booking")
	carrier := CarrierFrom(spanCtx)
	span.End()
	require.NotEmpty(t, carrier.Traceparent)

	_, child := Tracer("test").Start(carrier.Context(ctx), "publish")
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
}
