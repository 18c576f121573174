// Package otel provides OpenTelemetry instrumentation utilities for the library service.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by the sync pipeline, the store and the API spans
const (
	AttrPackageID        = attribute.Key("package.id")
	AttrPackageCount     = attribute.Key("package.count")
	AttrStoreType        = attribute.Key("store.type")
	AttrCatalogURL       = attribute.Key("catalog.url")
	AttrCatalogBytes     = attribute.Key("catalog.bytes")
	AttrSyncJobID        = attribute.Key("sync.job_id")
	AttrPreserveExisting = attribute.Key("sync.preserve_existing")
	AttrHadUpdates       = attribute.Key("sync.had_updates")
)

// StartSpan starts name on tracer. Components built without a tracer get the
// span already in ctx, which is a no-op span outside any trace.
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

// RecordError marks span as failed with err. Nil spans and errors are ignored.
// The status description stays generic so connection details never end up in
// the span status; the full error is kept in the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
