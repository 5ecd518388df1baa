package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/noah-isme/backend-quote/http"

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
	wrote  bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wrote {
		rr.status = code
		rr.wrote = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	rr.wrote = true
	n, err := rr.ResponseWriter.Write(p)
	rr.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rr *responseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

// HTTPObs records request counts and latency per operation.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

// Middleware instruments the wrapped handler. Requests outside a tagged
// operation are labelled "other" to keep label cardinality bounded.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newResponseRecorder(w)
		o.Metrics.InFlight.Inc()
		start := time.Now()
		defer o.Metrics.InFlight.Dec()
		next.ServeHTTP(rec, r)

		op := RouteOf(r).operationOr("other")
		o.Metrics.Requests.WithLabelValues(op, r.Method, statusClass(rec.status)).Inc()
		o.Metrics.Duration.WithLabelValues(op).Observe(durationMillis(time.Since(start)))
	})
}

// TracingMiddleware starts a server span per request, continuing any trace
// propagated by the caller. The span is renamed to the matched route once
// routing completes and carries the operation and session id.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := newResponseRecorder(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		rt := RouteOf(r)
		span.SetName(r.Method + " " + rt.patternOr(r.URL.Path))
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.HTTPRoute(rt.patternOr(r.URL.Path)),
			semconv.URLPath(r.URL.Path),
			semconv.HTTPResponseStatusCode(rec.status),
		}
		if rt.Operation != "" {
			attrs = append(attrs, attribute.String("quote.operation", rt.Operation))
		}
		if id := rt.SessionID(); id != "" {
			attrs = append(attrs, attribute.String("reconcile.session_id", id))
		}
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			attrs = append(attrs, attribute.String("http.request_id", reqID))
		}
		span.SetAttributes(attrs...)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
