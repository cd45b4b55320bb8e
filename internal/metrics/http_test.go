package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{name: "method pattern", pattern: "GET /api/v1/panel/competitions/{id}", want: "/api/v1/panel/competitions/{id}"},
		{name: "path only", pattern: "/healthz", want: "/healthz"},
		{name: "unmatched", pattern: "", want: "unmatched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Pattern = tt.pattern
			require.Equal(t, tt.want, routeLabel(req))
		})
	}
}

func TestAreaOf(t *testing.T) {
	tests := map[string]string{
		"/api/v1/panel/competitions/{id}": AreaPanel,
		"/api/v1/panel/availability":      AreaPanel,
		"/api/v1/date-requests":           AreaOrganizer,
		"/api/v1/my/competitions":         AreaOrganizer,
		"/api/v1/me":                      AreaOrganizer,
		"/auth/callback":                  AreaAuth,
		"/api/v1/calendar":                AreaPublic,
		"/api/v1/directory":               AreaPublic,
		"/readyz":                         AreaOps,
		"/metrics":                        AreaOps,
	}
	for path, want := range tests {
		require.Equal(t, want, AreaOf(path), path)
	}
}
