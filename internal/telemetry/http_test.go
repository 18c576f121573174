package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type instrumentedRouter struct {
	handler  http.Handler
	recorder *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

func newInstrumentedRouter(t *testing.T) *instrumentedRouter {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	instrument, err := InstrumentationMiddleware(tp, mp)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(instrument)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/v1/packages/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v1/sync/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	return &instrumentedRouter{handler: r, recorder: recorder, reader: reader}
}

func (ir *instrumentedRouter) get(path string) int {
	rec := httptest.NewRecorder()
	ir.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestMiddleware_SpanPerRoute(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	assert.Equal(t, http.StatusOK, ir.get("/v1/packages/wikipedia_en_all"))
	assert.Equal(t, http.StatusOK, ir.get("/v1/sync/jobs/4b3c"))

	spans := ir.recorder.Ended()
	require.Len(t, spans, 2)

	pkgSpan := spans[0]
	assert.Equal(t, "GET /v1/packages/{id}", pkgSpan.Name())
	assert.Equal(t, codes.Ok, pkgSpan.Status().Code)
	attrs := spanAttrs(pkgSpan)
	assert.Equal(t, "wikipedia_en_all", attrs["package.id"].AsString())
	assert.Equal(t, "/v1/packages/{id}", attrs["http.route"].AsString())
	assert.Equal(t, int64(http.StatusOK), attrs["http.response.status_code"].AsInt64())

	jobSpan := spans[1]
	assert.Equal(t, "GET /v1/sync/jobs/{id}", jobSpan.Name())
	assert.Equal(t, "4b3c", spanAttrs(jobSpan)["sync.job_id"].AsString())
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	assert.Equal(t, http.StatusNotFound, ir.get("/v1/packages/missing"))

	spans := ir.recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMiddleware_HealthIsNotTraced(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	assert.Equal(t, http.StatusOK, ir.get("/health"))
	assert.Empty(t, ir.recorder.Ended())

	// Probes are still counted
	got := collect(t, ir.reader)
	_, ok := got["zim_library_http_requests_total"]
	assert.True(t, ok)
}

func TestMiddleware_RequestMetrics(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	ir.get("/v1/packages/a")
	ir.get("/v1/packages/b")
	ir.get("/nowhere")

	got := collect(t, ir.reader)
	total, ok := got["zim_library_http_requests_total"]
	require.True(t, ok)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value("route")
		byRoute[route.AsString()] += dp.Value
	}
	assert.Equal(t, int64(2), byRoute["/v1/packages/{id}"])
	assert.Equal(t, int64(1), byRoute[unknownRoute])

	active, ok := got["zim_library_http_active_requests"]
	require.True(t, ok)
	activeSum, ok := active.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range activeSum.DataPoints {
		assert.Zero(t, dp.Value)
	}

	_, ok = got["zim_library_http_request_duration_seconds"]
	assert.True(t, ok)
}

func TestMiddleware_NilProvidersPassThrough(t *testing.T) {
	t.Parallel()

	instrument, err := InstrumentationMiddleware(nil, nil)
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	instrument(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/packages", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "zim-library/1.0", truncateUserAgent("zim-library/1.0"))
	long := strings.Repeat("a", MaxUserAgentLength+10)
	assert.Len(t, truncateUserAgent(long), MaxUserAgentLength)
}
