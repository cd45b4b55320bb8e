package middleware

import (
	"net/http"

	"github.com/ams-cubing/public-calendar/internal/metrics"
)

var baseSecurityHeaders = map[string]string{
	"X-Frame-Options":              "DENY",
	"X-Content-Type-Options":       "nosniff",
	"Referrer-Policy":              "strict-origin-when-cross-origin",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Resource-Policy": "same-site",
}

// SecurityHeaders sets the JSON API's hardening headers. Responses from the
// signed-in areas carry per-user data and are marked no-store. HSTS is sent
// only on TLS connections when requireHTTPS is set.
func SecurityHeaders(requireHTTPS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range baseSecurityHeaders {
				h.Set(name, value)
			}
			switch metrics.AreaOf(r.URL.Path) {
			case metrics.AreaOrganizer, metrics.AreaPanel, metrics.AreaAuth:
				h.Set("Cache-Control", "no-store")
			}
			if requireHTTPS && r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
