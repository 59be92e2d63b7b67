// Package telemetry adapts pkg/telemetry's OpenTelemetry setup to trace the
// collective operations of a session: one span per negotiate, broadcast,
// all-to-all, and block-primitive read/write.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/soltesz-lab/neuroh5")

// CollectiveSpan starts a span describing a collective call issued by the
// given rank. The returned function must be called with the error (if any)
// that the collective call returned, to record status and end the span.
func CollectiveSpan(ctx context.Context, op string, rank int, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	kv := append([]attribute.KeyValue{attribute.Int("neuroh5.rank", rank)}, attrs...)
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(kv...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// BlockIOAttrs builds the standard attribute set for a block-primitive
// read/write span: dataset path and byte count.
func BlockIOAttrs(path string, bytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("neuroh5.dataset", path),
		attribute.Int("neuroh5.bytes", bytes),
	}
}
