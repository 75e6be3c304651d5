package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

type setup struct {
	serviceName string
	useOTLP     bool
	// destination of the stdout exporters when OTLP is off
	out io.Writer
}

type Option func(*setup)

// WithWriter redirects the local exporters, for tools whose stdout is their result
func WithWriter(w io.Writer) Option {
	return func(s *setup) { s.out = w }
}

// SetupOTelSDK bootstraps the OpenTelemetry pipeline, tagging every signal with `serviceName`.
// Signals go to the OTLP collector when `useOTLP` is set and are printed locally otherwise.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func SetupOTelSDK(
	ctx context.Context,
	serviceName string,
	useOTLP bool,
	opts ...Option,
) (func(context.Context) error, error) {
	cfg := setup{serviceName: serviceName, useOTLP: useOTLP, out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	var shutdownFuncs []func(context.Context) error

	// errors from the registered cleanups are joined, each runs once
	shutdown := func(ctx context.Context) error {
		var er error
		for _, fn := range shutdownFuncs {
			er = errors.Join(er, fn(ctx))
		}
		shutdownFuncs = nil
		return er
	}

	handleErr := func(inErr error) error {
		return errors.Join(inErr, shutdown(ctx))
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.serviceName))

	otel.SetTextMapPropagator(newPropagator())

	tracerProvider, err := cfg.tracerProvider(ctx, res)
	if err != nil {
		return shutdown, handleErr(err)
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := cfg.meterProvider(ctx, res)
	if err != nil {
		return shutdown, handleErr(err)
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := cfg.loggerProvider(ctx, res)
	if err != nil {
		return shutdown, handleErr(err)
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

//nolint:ireturn // no control over otel's propagator interface return.
func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func (s setup) tracerProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	var err error
	var exporter trace.SpanExporter

	if s.useOTLP {
		exporter, err = otlptracegrpc.New(ctx)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(s.out))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		// follow the sampling decision of propagated parents (incoming requests, queued notifications)
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
		trace.WithBatcher(exporter),
	), nil
}

func (s setup) meterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	var err error
	var exporter metric.Exporter

	if s.useOTLP {
		exporter, err = otlpmetricgrpc.New(ctx)
	} else {
		exporter, err = stdoutmetric.New(stdoutmetric.WithWriter(s.out))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter)),
	), nil
}

func (s setup) loggerProvider(ctx context.Context, res *resource.Resource) (*log.LoggerProvider, error) {
	var err error
	var exporter log.Exporter

	if s.useOTLP {
		exporter, err = otlploggrpc.New(ctx)
	} else {
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(s.out))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exporter)),
	), nil
}
