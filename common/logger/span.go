package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "basegraph.app/booking"

// SpanContext pairs a span with the context it was started in.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan starts a child span of the trace in ctx.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// StartProviderSpan starts a client span around one outbound integration
// call. The app instance and capability are taken from the log fields of ctx.
//
//	sc := logger.StartProviderSpan(ctx, "calendar_busy_times")
//	err := call(sc.Context())
//	sc.Finish(err)
func StartProviderSpan(ctx context.Context, capability string) *SpanContext {
	fields := GetLogFields(ctx)
	attrs := []attribute.KeyValue{attribute.String("app.capability", capability)}
	if fields.AppID != nil {
		attrs = append(attrs, attribute.Int64("app.id", *fields.AppID))
	}
	if fields.TypeName != nil {
		attrs = append(attrs, attribute.String("app.type_name", *fields.TypeName))
	}
	return StartSpan(ctx, "app."+capability,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

func (sc *SpanContext) Span() trace.Span {
	return sc.span
}

// Finish records err, if any, as the span status and ends the span.
func (sc *SpanContext) Finish(err error) {
	if err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	} else {
		sc.span.SetStatus(codes.Ok, "")
	}
	sc.span.End()
}
