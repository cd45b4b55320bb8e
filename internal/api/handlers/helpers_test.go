package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ams-cubing/public-calendar/internal/api/middleware"
	"github.com/ams-cubing/public-calendar/internal/api/problem"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/stretchr/testify/require"
)

const testEnv = "test"

var (
	organizer = auth.Actor{WCAID: "2019ORGA01", Name: "Organizadora", Email: "orga@example.com", Role: auth.RoleUser}
	delegate  = auth.Actor{WCAID: "2015DELE01", Name: "Delegado", Email: "dele@example.com", Role: auth.RoleDelegate}
	admin     = auth.Actor{WCAID: "2012ADMI01", Name: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin}
)

// newRequest builds a request with an optional JSON body and signed-in actor.
func newRequest(method, target, body string, actor *auth.Actor) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	return req
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.ProblemDetails {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problem.ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func decodeJSONBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}
