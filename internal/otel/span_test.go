package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer("zim-library-test")
}

func TestStartSpan(t *testing.T) {
	t.Parallel()

	t.Run("nil tracer yields a no-op span", func(t *testing.T) {
		t.Parallel()

		ctx, span := StartSpan(context.Background(), nil, "sync.fetch")
		require.NotNil(t, ctx)
		assert.False(t, span.SpanContext().IsValid())
		assert.NotPanics(t, func() { span.End() })
	})

	t.Run("records span with sync attributes", func(t *testing.T) {
		t.Parallel()

		exporter, tracer := newRecordingTracer(t)
		_, span := StartSpan(context.Background(), tracer, "sync.reconcile",
			trace.WithAttributes(
				AttrSyncJobID.String("job-1"),
				AttrPreserveExisting.Bool(true),
				AttrPackageCount.Int(42),
			),
		)
		assert.True(t, span.SpanContext().IsValid())
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "sync.reconcile", spans[0].Name)

		attrs := map[string]any{}
		for _, kv := range spans[0].Attributes {
			attrs[string(kv.Key)] = kv.Value.AsInterface()
		}
		assert.Equal(t, "job-1", attrs["sync.job_id"])
		assert.Equal(t, true, attrs["sync.preserve_existing"])
		assert.Equal(t, int64(42), attrs["package.count"])
	})
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { RecordError(nil, errors.New("x")) })
	assert.NotPanics(t, func() { RecordError(nil, nil) })

	exporter, tracer := newRecordingTracer(t)

	_, clean := tracer.Start(context.Background(), "clean")
	RecordError(clean, nil)
	clean.End()

	_, failed := tracer.Start(context.Background(), "failed")
	RecordError(failed, errors.New("dial tcp 10.0.0.1:5432: connection refused"))
	failed.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Empty(t, spans[0].Events)

	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "operation failed", spans[1].Status.Description)
	require.NotEmpty(t, spans[1].Events)
	assert.Equal(t, "exception", spans[1].Events[0].Name)
}
