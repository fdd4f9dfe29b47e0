// Package observer provides OTEL-based observability for Code Tutor
// relay operations.
//
// It emits traces, metrics, and logs via OpenTelemetry; users export to
// any OTEL-compatible backend by setting standard OTEL env vars. All
// recording methods are safe on a nil *Instruments, so observability
// stays strictly optional.
package observer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/tutorlab/codetutor/observer"

// Instruments holds the OTEL instruments used by the relays and the hub.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	Executions   metric.Int64Counter
	Explanations metric.Int64Counter

	// Histograms (seconds, matching the wire-visible elapsed field)
	ExecutionDuration   metric.Float64Histogram
	ExplanationDuration metric.Float64Histogram

	// Gauge-like
	ActiveConnections metric.Int64UpDownCounter
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that
// must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("codetutor")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	executions, err := meter.Int64Counter("relay.executions",
		metric.WithDescription("Execution operation count"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}

	explanations, err := meter.Int64Counter("relay.explanations",
		metric.WithDescription("Explanation operation count"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}

	executionDuration, err := meter.Float64Histogram("relay.execution.duration",
		metric.WithDescription("Execution operation duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	explanationDuration, err := meter.Float64Histogram("relay.explanation.duration",
		metric.WithDescription("Explanation operation duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	activeConnections, err := meter.Int64UpDownCounter("hub.connections.active",
		metric.WithDescription("Currently open WebSocket connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:              tracer,
		Meter:               meter,
		Logger:              logger,
		Executions:          executions,
		Explanations:        explanations,
		ExecutionDuration:   executionDuration,
		ExplanationDuration: explanationDuration,
		ActiveConnections:   activeConnections,
	}, nil
}

// StartSpan opens an operation span. On a nil receiver it returns ctx
// and a no-op span.
func (i *Instruments) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if i == nil {
		return noop.NewTracerProvider().Tracer(scopeName).Start(ctx, name)
	}
	return i.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordExecution records one completed execution operation.
func (i *Instruments) RecordExecution(ctx context.Context, lang, backend, outcome string, elapsed time.Duration) {
	if i == nil {
		return
	}
	set := metric.WithAttributes(
		AttrLanguage.String(lang),
		AttrBackend.String(backend),
		AttrOutcome.String(outcome),
	)
	i.Executions.Add(ctx, 1, set)
	i.ExecutionDuration.Record(ctx, elapsed.Seconds(), set)
}

// RecordExplanation records one completed explanation operation.
func (i *Instruments) RecordExplanation(ctx context.Context, backend, outcome string, elapsed time.Duration) {
	if i == nil {
		return
	}
	set := metric.WithAttributes(
		AttrBackend.String(backend),
		AttrOutcome.String(outcome),
	)
	i.Explanations.Add(ctx, 1, set)
	i.ExplanationDuration.Record(ctx, elapsed.Seconds(), set)
}

// ConnectionOpened bumps the active-connection gauge.
func (i *Instruments) ConnectionOpened(ctx context.Context) {
	if i == nil {
		return
	}
	i.ActiveConnections.Add(ctx, 1)
}

// ConnectionClosed drops the active-connection gauge.
func (i *Instruments) ConnectionClosed(ctx context.Context) {
	if i == nil {
		return
	}
	i.ActiveConnections.Add(ctx, -1)
}
