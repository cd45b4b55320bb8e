package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders_AllHeaders(t *testing.T) {
	handler := SecurityHeaders(false)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calendar", nil))

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-site"},
		{"Cache-Control", ""},
	}

	for _, tt := range tests {
		if got := rec.Header().Get(tt.header); got != tt.expected {
			t.Errorf("expected %s: %s, got %s", tt.header, tt.expected, got)
		}
	}
}

func TestSecurityHeaders_NoStoreForSignedInAreas(t *testing.T) {
	handler := SecurityHeaders(false)(okHandler())

	for path, want := range map[string]string{
		"/api/v1/me":                 "no-store",
		"/api/v1/date-requests":      "no-store",
		"/api/v1/panel/availability": "no-store",
		"/auth/callback":             "no-store",
		"/api/v1/calendar":           "",
		"/healthz":                   "",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if got := rec.Header().Get("Cache-Control"); got != want {
			t.Errorf("%s: expected Cache-Control %q, got %q", path, want, got)
		}
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name         string
		requireHTTPS bool
		tls          bool
		want         bool
	}{
		{name: "development", requireHTTPS: false, tls: true, want: false},
		{name: "production over TLS", requireHTTPS: true, tls: true, want: true},
		{name: "production over plain HTTP", requireHTTPS: true, tls: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := SecurityHeaders(tt.requireHTTPS)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/calendar", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("Strict-Transport-Security") != ""
			if got != tt.want {
				t.Errorf("expected HSTS=%v, got %v", tt.want, got)
			}
		})
	}
}
