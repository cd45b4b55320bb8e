package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/ams-cubing/public-calendar/internal/domain/ids"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDKey is the context key for the request correlation ID.
const RequestIDKey contextKey = "request_id"

// RequestIDHeader is honored when a proxy already assigned an ID.
const RequestIDHeader = "X-Request-ID"

var inboundRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// CorrelationID assigns every request an ID, echoes it in the response and
// stores a request-scoped logger carrying it in the context. Inbound IDs
// with characters outside a conservative set are replaced.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !inboundRequestID.MatchString(requestID) {
				requestID = newRequestID()
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLogger := logger.With().Str("request_id", requestID).Logger()
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(reqLogger.WithContext(ctx)))
		})
	}
}

// newRequestID mints a ULID so request IDs in the logs sort by arrival.
func newRequestID() string {
	if id, err := ids.NewULID(); err == nil {
		return id
	}
	return uuid.NewString()
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// LoggerFromContext returns the request logger, or a no-op logger outside a
// request.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		noop := zerolog.Nop()
		return &noop
	}
	return logger
}
