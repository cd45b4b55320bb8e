package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ams-cubing/public-calendar/internal/validation"
	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// Problem type URIs.
const (
	TypeValidation   = "https://calendario.cubingmexico.net/problems/validation"
	TypeNotFound     = "https://calendario.cubingmexico.net/problems/not-found"
	TypeUnauthorized = "https://calendario.cubingmexico.net/problems/unauthorized"
	TypeForbidden    = "https://calendario.cubingmexico.net/problems/forbidden"
	TypeRateLimited  = "https://calendario.cubingmexico.net/problems/rate-limited"
	TypeCSRF         = "https://calendario.cubingmexico.net/problems/csrf-failure"
	TypeBadRequest   = "https://calendario.cubingmexico.net/problems/bad-request"
	TypeTooLarge     = "https://calendario.cubingmexico.net/problems/payload-too-large"
	TypeServer       = "https://calendario.cubingmexico.net/problems/server-error"
)

// ProblemDetails is an RFC 9457 problem document. Errors lists field
// failures for validation problems.
type ProblemDetails struct {
	Type     string                  `json:"type"`
	Title    string                  `json:"title"`
	Status   int                     `json:"status"`
	Detail   string                  `json:"detail,omitempty"`
	Instance string                  `json:"instance,omitempty"`
	Errors   []validation.FieldError `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs []validation.FieldError) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Write renders a problem document and logs err: 5xx at error level, 4xx
// at warn. Outside development and test the raw error text is replaced by
// the status text unless WithDetail supplies a user-facing message.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logProblem(r, problem, err)
	}

	WriteProblem(w, problem)
}

// logProblem logs 5xx problems at error level and 4xx at warn, with the
// request id already attached to the request logger.
func logProblem(r *http.Request, problem ProblemDetails, err error) {
	logger := zerolog.Ctx(r.Context())
	var event *zerolog.Event
	switch {
	case problem.Status >= 500:
		event = logger.Error()
	case problem.Status >= 400:
		event = logger.Warn()
	default:
		return
	}
	event.
		Err(err).
		Int("status", problem.Status).
		Str("type", problem.Type).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(problem.Title)
}

var fallbackBody = []byte(`{"type":"about:blank","title":"Internal Server Error","status":500}`)

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", contentType)
	payload, err := json.Marshal(problem)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(fallbackBody)
		return
	}
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
