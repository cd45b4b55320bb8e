package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/calendar"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/validation"
)

// CalendarService builds the public month view.
type CalendarService interface {
	Month(ctx context.Context, regionID *int, month time.Time) (*calendar.Month, error)
}

// DirectoryService lists regions and delegates.
type DirectoryService interface {
	Regions(ctx context.Context) ([]regions.Region, error)
	Directory(ctx context.Context) (*regions.Directory, error)
}

// PublicHandler serves the unauthenticated calendar, regions and directory.
type PublicHandler struct {
	calendar  CalendarService
	directory DirectoryService
	env       string
}

func NewPublicHandler(calendar CalendarService, directory DirectoryService, env string) *PublicHandler {
	return &PublicHandler{calendar: calendar, directory: directory, env: env}
}

type calendarCompetition struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name,omitempty"`
	City        string  `json:"city"`
	StateName   string  `json:"stateName"`
	RegionID    int     `json:"regionId"`
	RegionName  string  `json:"regionName"`
	RegionColor string  `json:"regionColor"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Status      string  `json:"status"`
	StatusLabel string  `json:"statusLabel"`
}

type calendarDay struct {
	Date         string  `json:"date"`
	Status       string  `json:"status"`
	StatusLabel  string  `json:"statusLabel"`
	Holiday      *string `json:"holiday,omitempty"`
	Competitions []int64 `json:"competitions"`
}

type calendarResponse struct {
	Month            string                `json:"month"`
	RegionID         *int                  `json:"regionId,omitempty"`
	EarliestBookable string                `json:"earliestBookable"`
	LastAvailable    *string               `json:"lastAvailable,omitempty"`
	Days             []calendarDay         `json:"days"`
	Competitions     []calendarCompetition `json:"competitions"`
	Regions          []regions.Region      `json:"regions"`
}

// Calendar handles GET /api/v1/calendar?region=&month=YYYY-MM.
func (h *PublicHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	verr := &validation.Error{}

	var regionID *int
	if raw := strings.TrimSpace(query.Get("region")); raw != "" && raw != "all" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			verr.Add("region", "Región inválida")
		} else {
			regionID = &id
		}
	}

	var month time.Time
	if raw := strings.TrimSpace(query.Get("month")); raw != "" {
		parsed, err := dates.ParseMonth(raw)
		if err != nil {
			verr.Add("month", "Mes inválido, usa el formato AAAA-MM")
		} else {
			month = parsed
		}
	}
	if err := verr.OrNil(); err != nil {
		writeError(w, r, err, h.env)
		return
	}

	view, err := h.calendar.Month(r.Context(), regionID, month)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}

	writeJSON(w, http.StatusOK, renderMonth(view))
}

func renderMonth(view *calendar.Month) calendarResponse {
	out := calendarResponse{
		Month:            view.Month.Format("2006-01"),
		RegionID:         view.RegionID,
		EarliestBookable: dates.Format(view.EarliestBookable),
		LastAvailable:    formatOptionalDay(view.LastAvailable),
		Days:             make([]calendarDay, 0, len(view.Days)),
		Competitions:     make([]calendarCompetition, 0, len(view.Competitions)),
		Regions:          view.Regions,
	}
	if out.Regions == nil {
		out.Regions = []regions.Region{}
	}
	for _, c := range view.Competitions {
		out.Competitions = append(out.Competitions, calendarCompetition{
			ID:          c.ID,
			Name:        c.Name,
			City:        c.City,
			StateName:   c.StateName,
			RegionID:    c.RegionID,
			RegionName:  c.RegionName,
			RegionColor: c.RegionColor,
			StartDate:   dates.Format(c.StartDate),
			EndDate:     dates.Format(c.EndDate),
			Status:      string(c.Status),
			StatusLabel: c.Status.Label(),
		})
	}
	for _, d := range view.Days {
		ids := make([]int64, 0, len(d.Competitions))
		for _, c := range d.Competitions {
			ids = append(ids, c.ID)
		}
		out.Days = append(out.Days, calendarDay{
			Date:         dates.Format(d.Date),
			Status:       string(d.Status),
			StatusLabel:  d.Status.Label(),
			Holiday:      d.Holiday,
			Competitions: ids,
		})
	}
	return out
}

// Regions handles GET /api/v1/regions.
func (h *PublicHandler) Regions(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.Regions(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if list == nil {
		list = []regions.Region{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": list})
}

// Directory handles GET /api/v1/directory.
func (h *PublicHandler) Directory(w http.ResponseWriter, r *http.Request) {
	dir, err := h.directory.Directory(r.Context())
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if dir.Delegates == nil {
		dir.Delegates = []regions.Delegate{}
	}
	if dir.Regions == nil {
		dir.Regions = []regions.Region{}
	}
	writeJSON(w, http.StatusOK, dir)
}
