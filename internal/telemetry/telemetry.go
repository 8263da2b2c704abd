// Package telemetry installs the OpenTelemetry tracer provider used by the CLI.
// Finished spans are exported as structured log records, so a submit run can
// be traced without a collector.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config defines the information needed to init tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	Logger         *slog.Logger
}

// InitTracing builds a tracer provider and installs it globally. When
// tracing is disabled a noop provider is returned and nothing is installed.
// The returned shutdown func flushes pending spans.
func InitTracing(cfg Config) (trace.TracerProvider, func(ctx context.Context), error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) {}, nil
	}
	if cfg.Logger == nil {
		return nil, nil, fmt.Errorf("telemetry: logger is required when tracing is enabled")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(NewLogExporter(cfg.Logger),
			sdktrace.WithBatchTimeout(time.Second),
			sdktrace.WithMaxExportBatchSize(256),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			cfg.Logger.Error("shutting down tracer provider", "error", err)
		}
	}
	return tp, shutdown, nil
}

// LogExporter is a sdktrace.SpanExporter that writes one log record per span.
type LogExporter struct {
	logger *slog.Logger
}

// NewLogExporter returns an exporter writing to logger.
func NewLogExporter(logger *slog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		args := []any{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()).String(),
			"events", len(s.Events()),
		}
		if parent := s.Parent(); parent.IsValid() {
			args = append(args, "parent_span_id", parent.SpanID().String())
		}
		if st := s.Status(); st.Code != codes.Unset {
			args = append(args, "status", st.Code.String())
			if st.Description != "" {
				args = append(args, "status_description", st.Description)
			}
		}
		args = append(args, attrsToArgs(s.Attributes())...)
		e.logger.InfoContext(ctx, "span", args...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(context.Context) error { return nil }

func attrsToArgs(attrs []attribute.KeyValue) []any {
	out := make([]any, 0, len(attrs)*2)
	for _, kv := range attrs {
		out = append(out, "attr."+string(kv.Key), kv.Value.AsInterface())
	}
	return out
}
