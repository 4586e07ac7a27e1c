package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingConfig holds configuration for tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Tracing owns the OpenTelemetry tracer provider. When enabled it installs an
// SDK provider globally; finished spans are written to the zap logger and to
// any extra processors passed to NewTracing.
type Tracing struct {
	config   TracingConfig
	logger   *zap.Logger
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracing creates a new tracing instance.
func NewTracing(config TracingConfig, logger *zap.Logger, processors ...sdktrace.SpanProcessor) *Tracing {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ServiceName == "" {
		config.ServiceName = "adaptroute"
	}

	t := &Tracing{config: config, logger: logger}
	if !config.Enabled {
		t.tracer = otel.Tracer(config.ServiceName)
		return t
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", config.ServiceName)}
	if config.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", config.Environment))
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithBatcher(&logExporter{logger: logger}),
	}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}

	t.provider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(t.provider)
	t.tracer = t.provider.Tracer(config.ServiceName)

	logger.Info("Tracing enabled",
		zap.String("service", config.ServiceName),
		zap.String("environment", config.Environment))
	return t
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a span when tracing is enabled. When disabled the returned
// span is the non-recording span already in ctx.
func (t *Tracing) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || !t.config.Enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := t.tracer.Start(ctx, operationName, trace.WithAttributes(attrs...))
	if t.config.Environment != "" {
		span.SetAttributes(attribute.String("deployment.environment", t.config.Environment))
	}
	return ctx, span
}

// AddEvent adds an event to the current span.
func (t *Tracing) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) as the span status and ends the span.
func (t *Tracing) EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if t == nil || !t.config.Enabled {
		return
	}
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// IsEnabled returns true if tracing is enabled.
func (t *Tracing) IsEnabled() bool {
	return t != nil && t.config.Enabled
}

// logExporter writes finished spans to the logger at debug level.
type logExporter struct {
	logger *zap.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fields := []zap.Field{
			zap.String("span", span.Name()),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
			zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
			zap.String("status", span.Status().Code.String()),
		}
		if desc := span.Status().Description; desc != "" {
			fields = append(fields, zap.String("status_message", desc))
		}
		for _, kv := range span.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("Span finished", fields...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}
