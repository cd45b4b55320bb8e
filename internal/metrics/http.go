package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route areas, derived from the URL prefix of the matched pattern.
const (
	AreaPublic    = "public"
	AreaAuth      = "auth"
	AreaOrganizer = "organizer"
	AreaPanel     = "panel"
	AreaOps       = "ops"
	AreaUnmatched = "unmatched"
)

var (
	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by area, method, route and status",
		},
		[]string{"area", "method", "route", "status"},
	)

	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"area", "route"},
	)

	HTTPRequestsInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed by area",
		},
		[]string{"area"},
	)

	HTTPResponseSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 7),
		},
		[]string{"area", "route"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// HTTPMiddleware records request metrics labelled by the matched route
// pattern, so path parameters do not create new series. The in-flight gauge
// is keyed by the request path because the pattern is only known afterwards.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight := HTTPRequestsInFlight.WithLabelValues(AreaOf(r.URL.Path))
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		route := routeLabel(r)
		area := AreaUnmatched
		if r.Pattern != "" {
			area = AreaOf(route)
		}

		HTTPRequestsTotal.WithLabelValues(area, r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(area, route).Observe(time.Since(start).Seconds())
		HTTPResponseSize.WithLabelValues(area, route).Observe(float64(rec.size))
	})
}

// routeLabel returns the ServeMux pattern that served r without its method
// prefix, or "unmatched" when routing never reached a pattern.
func routeLabel(r *http.Request) string {
	pattern := r.Pattern
	if pattern == "" {
		return AreaUnmatched
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// AreaOf maps a request path or route to the area label shared by metrics,
// access logs and spans.
func AreaOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/panel/"), path == "/api/v1/panel":
		return AreaPanel
	case strings.HasPrefix(path, "/api/v1/date-requests"), strings.HasPrefix(path, "/api/v1/my/"), path == "/api/v1/me":
		return AreaOrganizer
	case strings.HasPrefix(path, "/auth/"):
		return AreaAuth
	case strings.HasPrefix(path, "/api/v1/"):
		return AreaPublic
	default:
		return AreaOps
	}
}
