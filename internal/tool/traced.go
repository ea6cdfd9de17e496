package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"tally/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type tracedCapability struct {
	Capability
}

func withTrace(c Capability) Capability {
	return &tracedCapability{Capability: c}
}

func (t *tracedCapability) Invoke(ctx context.Context, args Args) (json.RawMessage, error) {
	ctx, span := trace.Tracer().Start(ctx, t.Name(),
		oteltrace.WithAttributes(
			attribute.String("tool.name", t.Name()),
			attribute.String("tool.query", args.Query),
			attribute.String("tool.month", args.Month),
		),
	)
	defer span.End()

	sc := span.SpanContext()
	slog.Debug("tool span started", "tool", t.Name(), "trace_id", sc.TraceID(), "span_id", sc.SpanID())

	value, err := t.Capability.Invoke(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return value, err
	}

	span.SetAttributes(attribute.Int("tool.output_length", len(value)))
	return value, nil
}
