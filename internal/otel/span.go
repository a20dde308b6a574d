// Package otel provides tracing helpers shared by the console's collection, backend and reconcile layers.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on console spans
const (
	AttrResource     = attribute.Key("collection.resource")
	AttrPage         = attribute.Key("query.page")
	AttrPageSize     = attribute.Key("query.page_size")
	AttrHasFilter    = attribute.Key("query.has_filter")
	AttrSequence     = attribute.Key("fetch.sequence")
	AttrResultCount  = attribute.Key("result.count")
	AttrResultTotal  = attribute.Key("result.total")
	AttrMutationKind = attribute.Key("mutation.kind")
	AttrMutationID   = attribute.Key("mutation.id")
	AttrItemID       = attribute.Key("item.id")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed.
// The status text stays generic; server messages can carry user data and live only in the event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// Discarded marks a span whose result was dropped without being an error
func Discarded(span trace.Span, reason string) {
	if span == nil {
		return
	}
	span.AddEvent("discarded", trace.WithAttributes(attribute.String("reason", reason)))
}
