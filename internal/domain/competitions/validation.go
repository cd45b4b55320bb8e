package competitions

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/sanitize"
	"github.com/ams-cubing/public-calendar/internal/validation"
)

const (
	msgEndBeforeStart   = "La fecha de fin debe ser igual o posterior a la fecha de inicio"
	msgLeadTime         = "Las fechas deben solicitarse con al menos %d meses de anticipación"
	msgPrimaryDelegate  = "El delegado principal debe estar en la lista de delegados"
	msgPrimaryOrganizer = "El organizador principal debe estar en la lista de organizadores"
	msgPublicStatus     = "Estado público inválido"
	msgInternalStatus   = "Estado interno inválido"
	msgUnknownUser      = "Usuario no encontrado: "
	msgDeadlinePast     = "La fecha límite no puede estar en el pasado"
)

// DateRequest is an organizer's request for competition dates.
type DateRequest struct {
	City      string    `json:"city" validate:"notblank,min=2,max=120"`
	StateID   string    `json:"stateId" validate:"required,max=3"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
}

func (r *DateRequest) normalize() {
	r.City = sanitize.Text(r.City)
	r.StateID = strings.ToUpper(strings.TrimSpace(r.StateID))
	r.StartDate = dates.Day(r.StartDate)
	r.EndDate = dates.Day(r.EndDate)
}

// Input is the full competition form used by the panel.
type Input struct {
	Name                  *string        `json:"name,omitempty" validate:"omitempty,min=2,max=120"`
	City                  string         `json:"city" validate:"notblank,min=2,max=120"`
	StateID               string         `json:"stateId" validate:"required,max=3"`
	TrelloURL             *string        `json:"trelloUrl,omitempty" validate:"omitempty,weburl"`
	WCACompetitionURL     *string        `json:"wcaCompetitionUrl,omitempty" validate:"omitempty,wcaurl"`
	Capacity              *int           `json:"capacity,omitempty" validate:"omitempty,gte=2"`
	StartDate             time.Time      `json:"startDate" validate:"required"`
	EndDate               time.Time      `json:"endDate" validate:"required"`
	StatusPublic          PublicStatus   `json:"statusPublic" validate:"required"`
	StatusInternal        InternalStatus `json:"statusInternal" validate:"required"`
	DelegateWCAIDs        []string       `json:"delegateWcaIds" validate:"min=1,dive,notblank"`
	PrimaryDelegateWCAID  string         `json:"primaryDelegateWcaId" validate:"required"`
	OrganizerWCAIDs       []string       `json:"organizerWcaIds" validate:"min=1,dive,notblank"`
	PrimaryOrganizerWCAID string         `json:"primaryOrganizerWcaId" validate:"required"`
	Notes                 *string        `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

func (in *Input) normalize() {
	in.Name = sanitize.OptionalText(in.Name)
	in.City = sanitize.Text(in.City)
	in.StateID = strings.ToUpper(strings.TrimSpace(in.StateID))
	in.TrelloURL = trimmedOrNil(in.TrelloURL)
	in.WCACompetitionURL = trimmedOrNil(in.WCACompetitionURL)
	in.StartDate = dates.Day(in.StartDate)
	in.EndDate = dates.Day(in.EndDate)
	in.DelegateWCAIDs = normalizeIDs(in.DelegateWCAIDs)
	in.OrganizerWCAIDs = normalizeIDs(in.OrganizerWCAIDs)
	in.PrimaryDelegateWCAID = normalizeID(in.PrimaryDelegateWCAID)
	in.PrimaryOrganizerWCAID = normalizeID(in.PrimaryOrganizerWCAID)
	if in.Notes != nil {
		notes := sanitize.Lines(*in.Notes)
		if notes == "" {
			in.Notes = nil
		} else {
			in.Notes = &notes
		}
	}
}

func (in Input) record(requestedBy *string) Record {
	return Record{
		Name:              in.Name,
		City:              in.City,
		StateID:           in.StateID,
		RequestedBy:       requestedBy,
		TrelloURL:         in.TrelloURL,
		WCACompetitionURL: in.WCACompetitionURL,
		Capacity:          in.Capacity,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		StatusPublic:      in.StatusPublic,
		StatusInternal:    in.StatusInternal,
		Notes:             in.Notes,
	}
}

// UltimatumInput is a notice sent to a competition's organizers.
type UltimatumInput struct {
	Deadline time.Time `json:"deadline" validate:"required"`
	Message  string    `json:"message,omitempty" validate:"max=2000"`
}

func (s *Service) validateDateRequest(req DateRequest) error {
	verr := &validation.Error{}
	if err := s.validator.Struct(req); err != nil {
		if !verr.Merge(err) {
			return err
		}
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		verr.Add("endDate", msgEndBeforeStart)
	}
	if !req.StartDate.IsZero() && req.StartDate.Before(s.earliestBookable()) {
		verr.Add("startDate", fmt.Sprintf(msgLeadTime, s.policy.LeadMonths))
	}
	return verr.OrNil()
}

func (s *Service) validateInput(in Input) error {
	verr := &validation.Error{}
	if err := s.validator.Struct(in); err != nil {
		if !verr.Merge(err) {
			return err
		}
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		verr.Add("endDate", msgEndBeforeStart)
	}
	if in.StatusPublic != "" && !in.StatusPublic.Valid() {
		verr.Add("statusPublic", msgPublicStatus)
	}
	if in.StatusInternal != "" && !in.StatusInternal.Valid() {
		verr.Add("statusInternal", msgInternalStatus)
	}
	if in.PrimaryDelegateWCAID != "" && !slices.Contains(in.DelegateWCAIDs, in.PrimaryDelegateWCAID) {
		verr.Add("primaryDelegateWcaId", msgPrimaryDelegate)
	}
	if in.PrimaryOrganizerWCAID != "" && !slices.Contains(in.OrganizerWCAIDs, in.PrimaryOrganizerWCAID) {
		verr.Add("primaryOrganizerWcaId", msgPrimaryOrganizer)
	}
	return verr.OrNil()
}

func (s *Service) validateUltimatum(in UltimatumInput) error {
	verr := &validation.Error{}
	if err := s.validator.Struct(in); err != nil {
		if !verr.Merge(err) {
			return err
		}
	}
	if !in.Deadline.IsZero() && dates.Day(in.Deadline).Before(s.today()) {
		verr.Add("deadline", msgDeadlinePast)
	}
	return verr.OrNil()
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = normalizeID(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
