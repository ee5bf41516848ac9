package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartProcessSpan opens a span for one queue delivery. The caller must end
// the span, reporting the outcome through EndProcessSpan.
func StartProcessSpan(ctx context.Context, queueName, entryID string) (context.Context, trace.Span) {
	tracer := GetTracer("streamq-queue")
	return tracer.Start(ctx, "queue.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", queueName),
			attribute.String("messaging.message.id", entryID),
		))
}

func EndProcessSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
