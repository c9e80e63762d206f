package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentCommand wraps the handling of one stdio protocol command. It:
//
//  1. Starts an OTel span named after the command.
//  2. Invokes handle with the span context.
//  3. Records handling time to [Metrics.CommandDuration] with the outcome.
//  4. Logs completion with status, duration, and trace info.
//
// The returned error is the error from handle, unchanged.
func InstrumentCommand(ctx context.Context, m *Metrics, cmd string, handle func(context.Context) error) error {
	start := time.Now()

	ctx, span := StartSpan(ctx, "command "+cmd,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("command", cmd)),
	)
	defer span.End()

	err := handle(ctx)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}

	duration := time.Since(start)
	m.CommandDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("cmd", cmd),
			attribute.String("status", status),
		),
	)

	slog.LogAttrs(ctx, slog.LevelInfo, "command completed",
		slog.String("trace_id", CorrelationID(ctx)),
		slog.String("cmd", cmd),
		slog.String("status", status),
		slog.Duration("duration", duration),
	)

	return err
}
