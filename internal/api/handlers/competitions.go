package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/ams-cubing/public-calendar/internal/validation"
)

const (
	msgCompetitionCreated = "Competencia creada exitosamente"
	msgCompetitionUpdated = "Competencia actualizada exitosamente"
	msgCompetitionDeleted = "Competencia eliminada"
	msgUltimatumSent      = "Ultimátum enviado exitosamente"
)

// CompetitionService is the scheduling surface used by the HTTP layer.
type CompetitionService interface {
	RequestQuota(ctx context.Context, actor auth.Actor) (competitions.Quota, error)
	RequestDate(ctx context.Context, actor auth.Actor, req competitions.DateRequest) (*competitions.RequestResult, error)
	EarliestBookable() time.Time
	Create(ctx context.Context, actor auth.Actor, in competitions.Input) (*competitions.Competition, error)
	Update(ctx context.Context, actor auth.Actor, id int64, in competitions.Input) (*competitions.Competition, error)
	Delete(ctx context.Context, actor auth.Actor, id int64) error
	SendUltimatum(ctx context.Context, actor auth.Actor, id int64, in competitions.UltimatumInput) error
	Get(ctx context.Context, actor auth.Actor, id int64) (*competitions.Competition, error)
	ListAll(ctx context.Context, actor auth.Actor) ([]competitions.Competition, error)
	ListRequestedBy(ctx context.Context, actor auth.Actor) ([]competitions.Competition, error)
}

type CompetitionsHandler struct {
	service CompetitionService
	env     string
}

func NewCompetitionsHandler(service CompetitionService, env string) *CompetitionsHandler {
	return &CompetitionsHandler{service: service, env: env}
}

type dateRequestBody struct {
	City      string `json:"city"`
	StateID   string `json:"stateId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type competitionBody struct {
	Name                  *string  `json:"name"`
	City                  string   `json:"city"`
	StateID               string   `json:"stateId"`
	TrelloURL             *string  `json:"trelloUrl"`
	WCACompetitionURL     *string  `json:"wcaCompetitionUrl"`
	Capacity              *int     `json:"capacity"`
	StartDate             string   `json:"startDate"`
	EndDate               string   `json:"endDate"`
	StatusPublic          string   `json:"statusPublic"`
	StatusInternal        string   `json:"statusInternal"`
	DelegateWCAIDs        []string `json:"delegateWcaIds"`
	PrimaryDelegateWCAID  string   `json:"primaryDelegateWcaId"`
	OrganizerWCAIDs       []string `json:"organizerWcaIds"`
	PrimaryOrganizerWCAID string   `json:"primaryOrganizerWcaId"`
	Notes                 *string  `json:"notes"`
}

func (b competitionBody) input() (competitions.Input, error) {
	var p dayParser
	in := competitions.Input{
		Name:                  b.Name,
		City:                  b.City,
		StateID:               b.StateID,
		TrelloURL:             b.TrelloURL,
		WCACompetitionURL:     b.WCACompetitionURL,
		Capacity:              b.Capacity,
		StartDate:             p.day("startDate", b.StartDate),
		EndDate:               p.day("endDate", b.EndDate),
		StatusPublic:          competitions.PublicStatus(b.StatusPublic),
		StatusInternal:        competitions.InternalStatus(b.StatusInternal),
		DelegateWCAIDs:        b.DelegateWCAIDs,
		PrimaryDelegateWCAID:  b.PrimaryDelegateWCAID,
		OrganizerWCAIDs:       b.OrganizerWCAIDs,
		PrimaryOrganizerWCAID: b.PrimaryOrganizerWCAID,
		Notes:                 b.Notes,
	}
	return in, p.err()
}

type ultimatumBody struct {
	Deadline string `json:"deadline"`
	Message  string `json:"message"`
}

type personResponse struct {
	WCAID     string  `json:"wcaId"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	IsPrimary bool    `json:"isPrimary"`
}

type competitionResponse struct {
	ID                  int64            `json:"id"`
	Name                *string          `json:"name,omitempty"`
	DisplayName         string           `json:"displayName"`
	City                string           `json:"city"`
	StateID             string           `json:"stateId"`
	StateName           string           `json:"stateName"`
	RegionID            int              `json:"regionId"`
	RegionName          string           `json:"regionName"`
	RegionColor         string           `json:"regionColor"`
	RequestedBy         *string          `json:"requestedBy,omitempty"`
	TrelloURL           *string          `json:"trelloUrl,omitempty"`
	WCACompetitionURL   *string          `json:"wcaCompetitionUrl,omitempty"`
	Capacity            *int             `json:"capacity,omitempty"`
	StartDate           string           `json:"startDate"`
	EndDate             string           `json:"endDate"`
	StatusPublic        string           `json:"statusPublic"`
	StatusPublicLabel   string           `json:"statusPublicLabel"`
	StatusInternal      string           `json:"statusInternal"`
	StatusInternalLabel string           `json:"statusInternalLabel"`
	Notes               *string          `json:"notes,omitempty"`
	UltimatumSentAt     *time.Time       `json:"ultimatumSentAt,omitempty"`
	UltimatumDeadline   *string          `json:"ultimatumDeadline,omitempty"`
	Delegates           []personResponse `json:"delegates"`
	Organizers          []personResponse `json:"organizers"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

func renderPeople(list []competitions.Person) []personResponse {
	out := make([]personResponse, 0, len(list))
	for _, p := range list {
		out = append(out, personResponse{WCAID: p.WCAID, Name: p.Name, AvatarURL: p.AvatarURL, IsPrimary: p.IsPrimary})
	}
	return out
}

func renderCompetition(c competitions.Competition) competitionResponse {
	return competitionResponse{
		ID:                  c.ID,
		Name:                c.Name,
		DisplayName:         c.DisplayName(),
		City:                c.City,
		StateID:             c.StateID,
		StateName:           c.StateName,
		RegionID:            c.RegionID,
		RegionName:          c.RegionName,
		RegionColor:         c.RegionColor,
		RequestedBy:         c.RequestedBy,
		TrelloURL:           c.TrelloURL,
		WCACompetitionURL:   c.WCACompetitionURL,
		Capacity:            c.Capacity,
		StartDate:           dates.Format(c.StartDate),
		EndDate:             dates.Format(c.EndDate),
		StatusPublic:        string(c.StatusPublic),
		StatusPublicLabel:   c.StatusPublic.Label(),
		StatusInternal:      string(c.StatusInternal),
		StatusInternalLabel: c.StatusInternal.Label(),
		Notes:               c.Notes,
		UltimatumSentAt:     c.UltimatumSentAt,
		UltimatumDeadline:   formatOptionalDay(c.UltimatumDeadline),
		Delegates:           renderPeople(c.Delegates),
		Organizers:          renderPeople(c.Organizers),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func renderCompetitions(list []competitions.Competition) []competitionResponse {
	out := make([]competitionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, renderCompetition(c))
	}
	return out
}

type quotaResponse struct {
	Limit            int        `json:"limit"`
	Used             int        `json:"used"`
	Remaining        int        `json:"remaining"`
	ResetsAt         *time.Time `json:"resetsAt,omitempty"`
	EarliestBookable string     `json:"earliestBookable"`
}

// Quota handles GET /api/v1/date-requests.
func (h *CompetitionsHandler) Quota(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	quota, err := h.service.RequestQuota(r.Context(), a)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{
		Limit:            quota.Limit,
		Used:             quota.Used,
		Remaining:        quota.Remaining,
		ResetsAt:         quota.ResetsAt,
		EarliestBookable: dates.Format(h.service.EarliestBookable()),
	})
}

type dateRequestResponse struct {
	result
	CompetitionID int64           `json:"competitionId"`
	Delegate      *personResponse `json:"delegate,omitempty"`
}

// RequestDate handles POST /api/v1/date-requests.
func (h *CompetitionsHandler) RequestDate(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	var body dateRequestBody
	if err := decodeJSON(r, &body); err != nil {
		metrics.DateRequests.WithLabelValues(metrics.DateRequestInvalid).Inc()
		writeDecodeError(w, r, err, h.env)
		return
	}

	var p dayParser
	req := competitions.DateRequest{
		City:      body.City,
		StateID:   body.StateID,
		StartDate: p.day("startDate", body.StartDate),
		EndDate:   p.day("endDate", body.EndDate),
	}
	if err := p.err(); err != nil {
		metrics.DateRequests.WithLabelValues(metrics.DateRequestInvalid).Inc()
		writeError(w, r, err, h.env)
		return
	}

	res, err := h.service.RequestDate(r.Context(), a, req)
	if err != nil {
		metrics.DateRequests.WithLabelValues(dateRequestOutcome(err)).Inc()
		writeError(w, r, err, h.env)
		return
	}

	out := dateRequestResponse{
		result:        result{Success: true, Message: res.Message},
		CompetitionID: res.CompetitionID,
	}
	if res.Delegate != nil {
		metrics.DateRequests.WithLabelValues(metrics.DateRequestAssigned).Inc()
		out.Delegate = &personResponse{WCAID: res.Delegate.WCAID, Name: res.Delegate.Name, IsPrimary: true}
	} else {
		metrics.DateRequests.WithLabelValues(metrics.DateRequestNoDelegate).Inc()
	}
	writeJSON(w, http.StatusCreated, out)
}

func dateRequestOutcome(err error) string {
	var verr *validation.Error
	switch {
	case errors.Is(err, competitions.ErrQuotaExceeded):
		return metrics.DateRequestQuota
	case errors.As(err, &verr), errors.Is(err, competitions.ErrStateNotFound):
		return metrics.DateRequestInvalid
	default:
		return metrics.DateRequestError
	}
}

// Mine handles GET /api/v1/my/competitions.
func (h *CompetitionsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	list, err := h.service.ListRequestedBy(r.Context(), a)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"competitions": renderCompetitions(list)})
}

// List handles GET /api/v1/panel/competitions.
func (h *CompetitionsHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	list, err := h.service.ListAll(r.Context(), a)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"competitions": renderCompetitions(list)})
}

// Get handles GET /api/v1/panel/competitions/{id}.
func (h *CompetitionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", h.env)
	if !ok {
		return
	}
	comp, err := h.service.Get(r.Context(), a, id)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, renderCompetition(*comp))
}

type competitionResult struct {
	result
	Competition competitionResponse `json:"competition"`
}

// Create handles POST /api/v1/panel/competitions.
func (h *CompetitionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	comp, err := h.service.Create(r.Context(), a, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, competitionResult{
		result:      result{Success: true, Message: msgCompetitionCreated},
		Competition: renderCompetition(*comp),
	})
}

// Update handles PUT /api/v1/panel/competitions/{id}.
func (h *CompetitionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", h.env)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	comp, err := h.service.Update(r.Context(), a, id, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, competitionResult{
		result:      result{Success: true, Message: msgCompetitionUpdated},
		Competition: renderCompetition(*comp),
	})
}

func (h *CompetitionsHandler) decodeInput(w http.ResponseWriter, r *http.Request) (competitions.Input, bool) {
	var body competitionBody
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, r, err, h.env)
		return competitions.Input{}, false
	}
	in, err := body.input()
	if err != nil {
		writeError(w, r, err, h.env)
		return competitions.Input{}, false
	}
	return in, true
}

// Delete handles DELETE /api/v1/panel/competitions/{id}.
func (h *CompetitionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", h.env)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), a, id); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: msgCompetitionDeleted})
}

// Ultimatum handles POST /api/v1/panel/competitions/{id}/ultimatum.
func (h *CompetitionsHandler) Ultimatum(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", h.env)
	if !ok {
		return
	}
	var body ultimatumBody
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	var p dayParser
	in := competitions.UltimatumInput{Deadline: p.day("deadline", body.Deadline), Message: body.Message}
	if err := p.err(); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if err := h.service.SendUltimatum(r.Context(), a, id, in); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: msgUltimatumSent})
}
