package middleware

import (
	"net/http"
	"strings"

	"github.com/ams-cubing/public-calendar/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ams-cubing/public-calendar/internal/api"

// Tracing starts a server span per request and propagates W3C trace
// context. It must wrap the ServeMux directly, or through wrappers that
// pass the same *http.Request along, so the matched pattern is visible once
// the handler returns. The span is then renamed to that pattern.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	propagator := otel.GetTextMapPropagator()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		attrs := []attribute.KeyValue{
			semconv.HTTPMethod(r.Method),
			attribute.String("url.path", r.URL.Path),
			semconv.HTTPScheme(scheme(r)),
			semconv.NetHostName(r.Host),
			attribute.String("http.user_agent", r.UserAgent()),
		}
		if requestID := GetRequestID(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		if actor, ok := ActorFromContext(ctx); ok {
			attrs = append(attrs,
				attribute.String("ams.actor.wca_id", actor.WCAID),
				attribute.String("ams.actor.role", string(actor.Role)))
		}

		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
		defer span.End()

		rw := &recorder{ResponseWriter: w}
		traced := r.WithContext(ctx)
		next.ServeHTTP(rw, traced)

		area := metrics.AreaUnmatched
		if traced.Pattern != "" {
			span.SetName(traced.Pattern)
			route := routeOf(traced.Pattern)
			area = metrics.AreaOf(route)
			span.SetAttributes(semconv.HTTPRoute(route))
		}

		status := rw.statusOrOK()
		span.SetAttributes(attribute.String("ams.area", area), semconv.HTTPStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// routeOf strips the method from a ServeMux pattern.
func routeOf(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		return proto
	}
	return "http"
}
