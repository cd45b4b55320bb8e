package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ams-cubing/public-calendar/internal/api/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readingHandler reads the whole body and answers 413 on MaxBytesError.
func readingHandler(t *testing.T, reached *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		if _, err := io.ReadAll(r.Body); err != nil {
			var tooLarge *http.MaxBytesError
			assert.True(t, errors.As(err, &tooLarge))
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestSize_DeclaredLength(t *testing.T) {
	tests := []struct {
		name          string
		bodySize      int
		wantStatus    int
		wantReachNext bool
	}{
		{"availability list accepted", 512, http.StatusOK, true},
		{"exact limit accepted", 1024, http.StatusOK, true},
		{"oversized rejected before handler", 2048, http.StatusRequestEntityTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			handler := RequestSize(1024, "test")(readingHandler(t, &reached))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/panel/availability", bytes.NewReader(bytes.Repeat([]byte("x"), tt.bodySize)))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantReachNext, reached)
		})
	}
}

func TestRequestSize_ProblemBody(t *testing.T) {
	handler := RequestSize(DefaultMaxBodySize, "production")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/date-requests", strings.NewReader(strings.Repeat("x", int(DefaultMaxBodySize)+1)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body problem.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, problem.TypeTooLarge, body.Type)
	require.Equal(t, "La solicitud es demasiado grande", body.Detail)
	require.Equal(t, "/api/v1/date-requests", body.Instance)
}

func TestRequestSize_UnknownLengthLimitedOnRead(t *testing.T) {
	reached := false
	handler := RequestSize(1024, "test")(readingHandler(t, &reached))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/panel/availability", io.NopCloser(strings.NewReader(strings.Repeat("x", 2048))))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, reached)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequestSize_NoBody(t *testing.T) {
	reached := false
	handler := RequestSize(1024, "test")(readingHandler(t, &reached))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calendar", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, reached)
}
