package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Trace context carried inside queue messages so a notification span links back to the ingest
// request that produced it.
type MessageCarrier map[string]string

// Ensure `MessageCarrier` implements [propagation.TextMapCarrier]
var _ propagation.TextMapCarrier = MessageCarrier(nil)

func (c MessageCarrier) Get(key string) string {
	return c[key]
}

func (c MessageCarrier) Set(key string, value string) {
	c[key] = value
}

func (c MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject the span in `ctx` using the global propagator
func Inject(ctx context.Context) MessageCarrier {
	carrier := MessageCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// Extract a remote span from `carrier` into `ctx`. A nil carrier leaves `ctx` untouched
func Extract(ctx context.Context, carrier MessageCarrier) context.Context {
	if carrier == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
