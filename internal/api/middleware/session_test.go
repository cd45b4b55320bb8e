package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	actors map[string]auth.Actor
	err    error
}

func (s stubResolver) Resolve(_ context.Context, token string) (*auth.Actor, error) {
	if s.err != nil {
		return nil, s.err
	}
	actor, ok := s.actors[token]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &actor, nil
}

func actorEcho(t *testing.T, seen *auth.Actor, signedIn *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, *signedIn = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestLoadSession(t *testing.T) {
	resolver := stubResolver{actors: map[string]auth.Actor{
		"good": {WCAID: "2015ABCD01", Name: "Ana", Role: auth.RoleDelegate},
	}}

	t.Run("valid cookie attaches actor", func(t *testing.T) {
		var actor auth.Actor
		var ok bool
		handler := LoadSession(resolver, false)(actorEcho(t, &actor, &ok))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "good"})
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.True(t, ok)
		assert.Equal(t, "2015ABCD01", actor.WCAID)
	})

	t.Run("no cookie continues anonymously", func(t *testing.T) {
		var actor auth.Actor
		var ok bool
		handler := LoadSession(resolver, false)(actorEcho(t, &actor, &ok))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calendar", nil))

		assert.False(t, ok)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("stale cookie is cleared", func(t *testing.T) {
		var actor auth.Actor
		var ok bool
		handler := LoadSession(resolver, true)(actorEcho(t, &actor, &ok))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "expired"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.False(t, ok)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
		assert.Negative(t, cookies[0].MaxAge)
		assert.True(t, cookies[0].Secure)
	})

	t.Run("store failure keeps cookie", func(t *testing.T) {
		var actor auth.Actor
		var ok bool
		handler := LoadSession(stubResolver{err: errors.New("db down")}, false)(actorEcho(t, &actor, &ok))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "good"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.False(t, ok)
		assert.Empty(t, rec.Result().Cookies())
	})
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		actor  *auth.Actor
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "user", actor: &auth.Actor{WCAID: "U", Role: auth.RoleUser}, status: http.StatusForbidden},
		{name: "delegate", actor: &auth.Actor{WCAID: "D", Role: auth.RoleDelegate}, status: http.StatusOK},
		{name: "admin", actor: &auth.Actor{WCAID: "A", Role: auth.RoleAdmin}, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole("test", auth.RoleDelegate, auth.RoleAdmin)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/panel/competitions", nil)
			if tt.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tt.actor))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRequireSignedIn(t *testing.T) {
	handler := RequireSignedIn("test")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Debes iniciar sesión")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req = req.WithContext(WithActor(req.Context(), auth.Actor{WCAID: "U", Role: auth.RoleUser}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
