package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/availability"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
)

const (
	msgAvailabilitySaved   = "Disponibilidad registrada exitosamente"
	msgAvailabilityDeleted = "Disponibilidad eliminada exitosamente"
	msgUnavailabilitySaved = "Indisponibilidad registrada exitosamente"
)

type AvailabilityService interface {
	SubmitAvailability(ctx context.Context, actor auth.Actor, days []time.Time) (int64, error)
	DeleteAvailability(ctx context.Context, actor auth.Actor, days []time.Time) (int64, error)
	SubmitUnavailability(ctx context.Context, actor auth.Actor, in availability.UnavailabilityInput) (int64, error)
	Overview(ctx context.Context, actor auth.Actor) (*availability.Overview, error)
}

type AvailabilityHandler struct {
	service AvailabilityService
	env     string
}

func NewAvailabilityHandler(service AvailabilityService, env string) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, env: env}
}

type datesBody struct {
	Dates []string `json:"dates"`
}

type unavailabilityBody struct {
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Note      *string `json:"note"`
}

type unavailabilityResponse struct {
	ID        int64   `json:"id"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Note      *string `json:"note,omitempty"`
}

type assignmentResponse struct {
	CompetitionID int64   `json:"competitionId"`
	Name          *string `json:"name,omitempty"`
	City          string  `json:"city"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
}

type overviewResponse struct {
	Available      []string                 `json:"available"`
	Unavailability []unavailabilityResponse `json:"unavailability"`
	Assignments    []assignmentResponse     `json:"assignments"`
	BusyDays       []string                 `json:"busyDays"`
}

type countResult struct {
	result
	Count int64 `json:"count"`
}

// Overview handles GET /api/v1/panel/availability.
func (h *AvailabilityHandler) Overview(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	view, err := h.service.Overview(r.Context(), a)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}

	out := overviewResponse{
		Available:      formatDays(view.Available),
		Unavailability: make([]unavailabilityResponse, 0, len(view.Unavailability)),
		Assignments:    make([]assignmentResponse, 0, len(view.Assignments)),
		BusyDays:       formatDays(view.BusyDays),
	}
	for _, u := range view.Unavailability {
		out.Unavailability = append(out.Unavailability, unavailabilityResponse{
			ID:        u.ID,
			StartDate: dates.Format(u.Start),
			EndDate:   dates.Format(u.End),
			Note:      u.Note,
		})
	}
	for _, as := range view.Assignments {
		out.Assignments = append(out.Assignments, assignmentResponse{
			CompetitionID: as.CompetitionID,
			Name:          as.Name,
			City:          as.City,
			StartDate:     dates.Format(as.Start),
			EndDate:       dates.Format(as.End),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Submit handles POST /api/v1/panel/availability.
func (h *AvailabilityHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.changeDays(w, r, h.service.SubmitAvailability, msgAvailabilitySaved)
}

// Delete handles DELETE /api/v1/panel/availability.
func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.changeDays(w, r, h.service.DeleteAvailability, msgAvailabilityDeleted)
}

func (h *AvailabilityHandler) changeDays(w http.ResponseWriter, r *http.Request, apply func(context.Context, auth.Actor, []time.Time) (int64, error), message string) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	var body datesBody
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	var p dayParser
	days := p.days("dates", body.Dates)
	if err := p.err(); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	n, err := apply(r.Context(), a, days)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, countResult{result: result{Success: true, Message: message}, Count: n})
}

type createdResult struct {
	result
	ID int64 `json:"id"`
}

// SubmitUnavailability handles POST /api/v1/panel/unavailability.
func (h *AvailabilityHandler) SubmitUnavailability(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	var body unavailabilityBody
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	var p dayParser
	in := availability.UnavailabilityInput{
		StartDate: p.day("startDate", body.StartDate),
		EndDate:   p.day("endDate", body.EndDate),
		Note:      body.Note,
	}
	if err := p.err(); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	id, err := h.service.SubmitUnavailability(r.Context(), a, in)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusCreated, createdResult{result: result{Success: true, Message: msgUnavailabilitySaved}, ID: id})
}
