package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/ams-cubing/public-calendar/internal/api/problem"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	actorKey contextKey = "actor"
	stateKey contextKey = "request_state"
)

// requestState is shared by pointer with middleware that runs before the
// session is resolved, so the access log can name the actor.
type requestState struct {
	actor *auth.Actor
}

func withRequestState(ctx context.Context, state *requestState) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

// SessionResolver maps a session cookie value to the signed-in actor.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Actor, error)
}

// WithActor returns a context carrying the signed-in actor.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the signed-in actor, if any.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(auth.Actor)
	return actor, ok
}

// LoadSession resolves the session cookie and stores the actor in the
// request context. Requests without a valid session continue anonymously;
// a stale cookie is cleared.
func LoadSession(sessions SessionResolver, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := sessions.Resolve(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, auth.ErrSessionNotFound) {
					ClearSessionCookie(w, secureCookies)
				} else {
					LoggerFromContext(r.Context()).Error().Err(err).Msg("resolve session")
				}
				next.ServeHTTP(w, r)
				return
			}

			if state, ok := r.Context().Value(stateKey).(*requestState); ok {
				state.actor = actor
			}
			ctx := WithActor(r.Context(), *actor)
			logger := zerolog.Ctx(ctx).With().Str("actor", actor.WCAID).Logger()
			ctx = logger.WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie writes the session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	SetSessionCookie(w, "", -1, secure)
}

// RequireSignedIn rejects anonymous requests with 401.
func RequireSignedIn(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ActorFromContext(r.Context()); !ok {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env,
					problem.WithDetail("Debes iniciar sesión"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects anonymous requests with 401 and actors outside roles
// with 403.
func RequireRole(env string, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env,
					problem.WithDetail("Debes iniciar sesión"))
				return
			}
			if !auth.HasRole(actor.Role, roles...) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", problem.ErrForbidden, env,
					problem.WithDetail("No tienes permiso para acceder a esta página"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
