package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Carrier is the W3C trace context persisted alongside a deferred message,
// such as an outbox row, so the publish step joins the originating trace.
type Carrier struct {
	Traceparent string
	Tracestate  string
}

// CarrierFrom captures the span context active in ctx. The zero Carrier
// means ctx carried no span.
func CarrierFrom(ctx context.Context) Carrier {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return Carrier{Traceparent: m["traceparent"], Tracestate: m["tracestate"]}
}

// Context returns ctx carrying the stored span context as its remote parent.
func (c Carrier) Context(ctx context.Context) context.Context {
	if c.Traceparent == "" {
		return ctx
	}
	m := propagation.MapCarrier{"traceparent": c.Traceparent}
	if c.Tracestate != "" {
		m["tracestate"] = c.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, m)
}
