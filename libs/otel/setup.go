package otelx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	ServiceName  string  `env:"-"`
	Enabled      bool    `env:"OTEL_ENABLED" envDefault:"true"`
	OTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"jaeger:4317"`
	Protocol     string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	SampleRatio  float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"1"`
	Environment  string  `env:"DEPLOY_ENV" envDefault:"dev"`
	Version      string  `env:"SERVICE_VERSION"`

	// Exporter overrides the OTLP exporter; used by tests.
	Exporter sdktrace.SpanExporter `env:"-"`
}

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

func ConfigFromEnv(serviceName string) (Config, error) {
	cfg := Config{ServiceName: serviceName}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("otel config: %w", err)
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return Config{}, fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1] (got %v)", cfg.SampleRatio)
	}
	switch cfg.Protocol {
	case ProtocolGRPC, ProtocolHTTP:
	default:
		return Config{}, fmt.Errorf("OTEL_EXPORTER_OTLP_PROTOCOL must be %q or %q (got %q)", ProtocolGRPC, ProtocolHTTP, cfg.Protocol)
	}
	return cfg, nil
}

// Setup installs the W3C propagators and, when enabled, a batching tracer
// provider. The returned func flushes and stops the provider.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp := cfg.Exporter
	if exp == nil {
		var err error
		if exp, err = newExporter(ctx, cfg); err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
	}

	attrs := []resource.Option{resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	)}
	if cfg.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.Version)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithTimeout(3*time.Second),
		)
	}
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("groombook/" + name)
}

// Init configures tracing from the environment and returns a deferrable
// flush. Failures are logged and leave tracing off; the service still starts.
func Init(ctx context.Context, serviceName string, logger *slog.Logger) func() {
	noop := func() {}
	cfg, err := ConfigFromEnv(serviceName)
	if err != nil {
		logger.Error("otel config invalid", "err", err)
		return noop
	}
	shutdown, err := Setup(ctx, cfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		return noop
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("otel shutdown", "err", err)
		}
	}
}
