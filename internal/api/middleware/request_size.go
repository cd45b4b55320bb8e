package middleware

import (
	"errors"
	"net/http"

	"github.com/ams-cubing/public-calendar/internal/api/problem"
)

// DefaultMaxBodySize caps JSON request bodies. The largest payload is a
// delegate's availability list, a few thousand dates at most.
const DefaultMaxBodySize int64 = 64 << 10

const msgBodyTooLarge = "La solicitud es demasiado grande"

var errBodyTooLarge = errors.New("declared request body exceeds limit")

// RequestSize rejects bodies whose declared Content-Length exceeds maxBytes
// and wraps the rest with http.MaxBytesReader, so chunked bodies fail on read.
func RequestSize(maxBytes int64, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request too large", errBodyTooLarge, env,
					problem.WithDetail(msgBodyTooLarge))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
