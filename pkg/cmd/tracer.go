package cmd

import (
	"context"
	"log/slog"

	"github.com/autoflow-io/autoflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns the OTLP tracer when enabled and the global no-op tracer otherwise.
// The returned func flushes pending spans.
//
//nolint:ireturn // tracers are interfaces
func NewTracer(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) (trace.Tracer, func()) {
	if !enabled {
		return otelhelper.NoopTracer(serviceName), func() {}
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracing, continuing without it", "error", err)

		return otelhelper.NoopTracer(serviceName), func() {}
	}

	return tracer, func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
		}
	}
}
