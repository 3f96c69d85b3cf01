package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/HsiangNianian/AMonItor/gateway/internal/config"
)

const tracerName = "github.com/HsiangNianian/AMonItor/gateway"

// newTracing returns the tracer the gateway dispatches under and a shutdown
// func that flushes pending spans. With tracing disabled both are no-ops.
func newTracing(cfg config.TraceConfig, logger *slog.Logger) (trace.Tracer, func(context.Context) error) {
	if !cfg.Enabled {
		return nil, func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&spanLogger{logger: logger}),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", "sample_ratio", cfg.SampleRatio)
	return tp.Tracer(tracerName), tp.Shutdown
}

// spanLogger exports finished spans as debug log records.
type spanLogger struct {
	logger *slog.Logger
}

func (e *spanLogger) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.String("span_id", s.SpanContext().SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
			slog.String("status", s.Status().Code.String()),
		}
		if d := s.Status().Description; d != "" {
			attrs = append(attrs, slog.String("error", d))
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.LogAttrs(ctx, slog.LevelDebug, "span "+s.Name(), attrs...)
	}
	return nil
}

func (e *spanLogger) Shutdown(context.Context) error { return nil }
