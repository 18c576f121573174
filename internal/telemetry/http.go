package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	libotel "github.com/zimshelf/zim-library/internal/otel"
)

const (
	// HTTPInstrumentationName names the tracer and meter of the API layer
	HTTPInstrumentationName = "github.com/zimshelf/zim-library/http"

	// MaxUserAgentLength caps the user agent recorded on spans
	MaxUserAgentLength = 256

	// unknownRoute replaces unmatched paths so metric labels stay bounded
	unknownRoute = "unknown_route"
)

// untracedPaths are probe and scrape endpoints that would only add noise
var untracedPaths = map[string]struct{}{
	"/health":    {},
	"/readiness": {},
	"/metrics":   {},
}

// HTTPInstrumentation records a server span and request metrics per API call
type HTTPInstrumentation struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPInstrumentation creates the API instrumentation. A nil provider
// disables that half; with both nil the middleware passes requests through.
func NewHTTPInstrumentation(tp trace.TracerProvider, mp metric.MeterProvider) (*HTTPInstrumentation, error) {
	h := &HTTPInstrumentation{}

	if tp != nil {
		h.tracer = tp.Tracer(HTTPInstrumentationName)
		h.propagator = otel.GetTextMapPropagator()
	}

	if mp != nil {
		meter := mp.Meter(HTTPInstrumentationName)
		var err error

		h.requestDuration, err = meter.Float64Histogram(
			"zim_library_http_request_duration_seconds",
			metric.WithDescription("Duration of API requests in seconds"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
		}

		h.requestsTotal, err = meter.Int64Counter(
			"zim_library_http_requests_total",
			metric.WithDescription("API requests by route and status"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request counter: %w", err)
		}

		h.activeRequests, err = meter.Int64UpDownCounter(
			"zim_library_http_active_requests",
			metric.WithDescription("API requests currently being served"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create active request counter: %w", err)
		}
	}

	return h, nil
}

// Middleware instruments next. The route pattern is read after next returns,
// so it must run inside a chi router.
func (h *HTTPInstrumentation) Middleware(next http.Handler) http.Handler {
	if h == nil || (h.tracer == nil && h.requestsTotal == nil) {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The request context may be cancelled once ServeHTTP returns
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var span trace.Span
		if _, skip := untracedPaths[r.URL.Path]; h.tracer != nil && !skip {
			ctx = h.propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span = h.tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.UserAgentOriginal(truncateUserAgent(r.UserAgent())),
				),
			)
			defer span.End()
			r = r.WithContext(ctx)
		}

		if h.activeRequests != nil {
			h.activeRequests.Add(ctx, 1)
		}

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()

		if span != nil {
			// Route patterns keep span names bounded
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCode(status),
			)
			if attr, ok := resourceAttribute(r, route); ok {
				span.SetAttributes(attr)
			}
			if status >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}

		if h.requestsTotal != nil {
			h.activeRequests.Add(ctx, -1)
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status_code", strconv.Itoa(status)),
			)
			h.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			h.requestsTotal.Add(ctx, 1, attrs)
		}
	})
}

// InstrumentationMiddleware builds the API middleware from the providers
func InstrumentationMiddleware(tp trace.TracerProvider, mp metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	h, err := NewHTTPInstrumentation(tp, mp)
	if err != nil {
		return nil, err
	}
	return h.Middleware, nil
}

// routePattern returns the matched chi pattern, e.g. /v1/packages/{id}
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}

// resourceAttribute names the package or sync job a request addressed
func resourceAttribute(r *http.Request, route string) (attribute.KeyValue, bool) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return attribute.KeyValue{}, false
	}
	id := rctx.URLParam("id")
	if id == "" {
		return attribute.KeyValue{}, false
	}
	switch {
	case strings.Contains(route, "/sync/jobs/"):
		return libotel.AttrSyncJobID.String(id), true
	case strings.Contains(route, "/packages/"):
		return libotel.AttrPackageID.String(id), true
	default:
		return attribute.KeyValue{}, false
	}
}

func truncateUserAgent(ua string) string {
	if len(ua) > MaxUserAgentLength {
		return ua[:MaxUserAgentLength]
	}
	return ua
}
