package middleware

import (
	"errors"
	"net/http"

	"github.com/ams-cubing/public-calendar/internal/api/problem"
	"github.com/gorilla/csrf"
)

// CSRFHeader carries the token on unsafe requests.
const CSRFHeader = "X-CSRF-Token"

var errCSRF = errors.New("csrf token validation failed")

// CSRFProtection guards the cookie-authenticated API with gorilla/csrf's
// double-submit cookie. Clients read the token from the X-CSRF-Token
// response header of any safe request and echo it on POST, PUT, PATCH and
// DELETE. Without secure cookies requests are treated as plaintext HTTP so
// the HTTPS referer check does not reject local development.
func CSRFProtection(authKey []byte, secure bool, env string) func(http.Handler) http.Handler {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.ErrorHandler(csrfErrorHandler(env)),
	)

	return func(next http.Handler) http.Handler {
		exposeToken := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CSRFHeader, csrf.Token(r))
			next.ServeHTTP(w, r)
		})
		wrapped := protect(exposeToken)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

func csrfErrorHandler(env string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := errCSRF
		if reason := csrf.FailureReason(r); reason != nil {
			err = errors.Join(errCSRF, reason)
		}
		problem.Write(w, r, http.StatusForbidden, problem.TypeCSRF, "CSRF token validation failed", err, env,
			problem.WithDetail("La sesión expiró, recarga la página e intenta de nuevo"))
	})
}

// CSRFToken returns the masked token for the current request.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}
