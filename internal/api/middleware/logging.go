package middleware

import (
	"net/http"
	"time"

	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/rs/zerolog"
)

// RequestLogging writes one access log line per request using the
// request-scoped logger from CorrelationID. Probes log at debug, client
// errors at warn and server errors at error. The actor is resolved later in
// the chain, so it is read from the shared request state after the handler.
func RequestLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &recorder{ResponseWriter: w}
			state := &requestState{}
			r = r.WithContext(withRequestState(r.Context(), state))

			next.ServeHTTP(rw, r)

			status := rw.statusOrOK()
			logger := LoggerFromContext(r.Context())
			event := accessEvent(logger, r.URL.Path, status)
			if state.actor != nil {
				event = event.Str("wca_id", state.actor.WCAID).Str("role", string(state.actor.Role))
			}
			event.
				Str("area", metrics.AreaOf(r.URL.Path)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", rw.bytes).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func accessEvent(logger *zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	case isProbe(path):
		return logger.Debug()
	default:
		return logger.Info()
	}
}
