package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ams-cubing/public-calendar/internal/api/middleware"
	"github.com/ams-cubing/public-calendar/internal/api/problem"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/activity"
	"github.com/ams-cubing/public-calendar/internal/domain/availability"
	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/ams-cubing/public-calendar/internal/validation"
)

const (
	msgInvalidBody    = "El cuerpo de la solicitud no es válido"
	msgBodyTooLarge   = "La solicitud es demasiado grande"
	msgInvalidDate    = "Fecha inválida"
	msgNotFound       = "No encontrado"
	msgStateNotFound  = "Estado no encontrado"
	msgSignInRequired = "Debes iniciar sesión"
	msgForbidden      = "No tienes permiso para realizar esta acción"
	msgQuota          = "Has alcanzado el límite de solicitudes por día (%d). Intenta de nuevo después de %s"
	msgServerError    = "Error al procesar la solicitud"
	msgInvalidData    = "Datos inválidos"
)

// result is the success envelope shared by mutating endpoints.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

var errEmptyBody = errors.New("empty request body")

// writeDecodeError reports a body that could not be decoded.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeBadRequest, "Request too large", err, env,
			problem.WithDetail(msgBodyTooLarge))
		return
	}
	problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Invalid request body", err, env,
		problem.WithDetail(msgInvalidBody))
}

// writeError maps domain errors to problem documents.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var verr *validation.Error
	var quota *competitions.QuotaError

	switch {
	case errors.As(err, &verr):
		detail := msgInvalidData
		if len(verr.Fields) > 0 {
			detail = verr.Fields[0].Message
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, env,
			problem.WithDetail(detail), problem.WithErrors(verr.Fields))
	case errors.As(err, &quota):
		retryAfter := int(time.Until(quota.RetryAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Quota exceeded", err, env,
			problem.WithDetail(fmt.Sprintf(msgQuota, quota.Limit, quota.RetryAt.Format("02/01/2006 15:04"))))
	case errors.Is(err, competitions.ErrStateNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "State not found", err, env,
			problem.WithDetail(msgStateNotFound))
	case errors.Is(err, competitions.ErrNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, regions.ErrNotFound),
		errors.Is(err, availability.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, env,
			problem.WithDetail(msgNotFound))
	case errors.Is(err, competitions.ErrUnauthorized),
		errors.Is(err, availability.ErrUnauthorized):
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env,
			problem.WithDetail(msgSignInRequired))
	case errors.Is(err, competitions.ErrForbidden),
		errors.Is(err, users.ErrForbidden),
		errors.Is(err, activity.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env,
			problem.WithDetail(msgForbidden))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", err, env,
			problem.WithDetail(msgServerError))
	}
}

// actor returns the signed-in actor. Routes are guarded by
// RequireSignedIn or RequireRole, so a missing actor is answered with 401.
func actor(w http.ResponseWriter, r *http.Request, env string) (auth.Actor, bool) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env,
			problem.WithDetail(msgSignInRequired))
	}
	return a, ok
}

// pathID parses a numeric path value.
func pathID(w http.ResponseWriter, r *http.Request, name, env string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", problem.ErrNotFound, env,
			problem.WithDetail(msgNotFound))
		return 0, false
	}
	return id, true
}

// dayParser collects parse failures for several date fields into one
// validation error.
type dayParser struct {
	verr validation.Error
}

// day parses value; empty values yield the zero time so required checks in
// the domain report them.
func (p *dayParser) day(field, value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	t, err := dates.Parse(value)
	if err != nil {
		p.verr.Add(field, msgInvalidDate)
		return time.Time{}
	}
	return t
}

func (p *dayParser) days(field string, values []string) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		if t := p.day(field, v); !t.IsZero() {
			out = append(out, t)
		}
	}
	return out
}

func (p *dayParser) err() error {
	return p.verr.OrNil()
}

func formatDays(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = dates.Format(d)
	}
	return out
}

func formatOptionalDay(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := dates.Format(*t)
	return &s
}
