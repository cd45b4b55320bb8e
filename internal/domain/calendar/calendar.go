// Package calendar builds the public month view: competitions per day, holiday
// names and a traffic-light status telling organizers which days they can
// still request.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"golang.org/x/sync/errgroup"
)

// DayStatus is the traffic-light status of a calendar day.
type DayStatus string

const (
	// DayUnavailable is outside the bookable window ("Inhábil").
	DayUnavailable DayStatus = "unavailable"
	// DayAvailable has at least one delegate who marked the day available.
	DayAvailable DayStatus = "available"
	// DayConditional is bookable but no delegate confirmed availability.
	DayConditional DayStatus = "conditional"
)

var statusLabels = map[DayStatus]string{
	DayUnavailable: "Inhábil",
	DayAvailable:   "Disponible",
	DayConditional: "Condicional",
}

func (s DayStatus) Label() string { return statusLabels[s] }

// Competition is the public part of a competition.
type Competition struct {
	ID          int64
	Name        *string
	City        string
	StateName   string
	RegionID    int
	RegionName  string
	RegionColor string
	StartDate   time.Time
	EndDate     time.Time
	Status      competitions.PublicStatus
}

func (c Competition) Range() dates.Range {
	return dates.Range{Start: c.StartDate, End: c.EndDate}
}

// Day is one cell of the month view.
type Day struct {
	Date         time.Time
	Status       DayStatus
	Holiday      *string
	Competitions []Competition
}

// Month is the full month view.
type Month struct {
	Month            time.Time
	RegionID         *int
	EarliestBookable time.Time
	LastAvailable    *time.Time
	Days             []Day
	Competitions     []Competition
	Regions          []regions.Region
}

type Repository interface {
	ListCalendarCompetitions(ctx context.Context, regionID *int, window dates.Range) ([]Competition, error)
	AvailableDays(ctx context.Context, regionID *int, window dates.Range) ([]time.Time, error)
	LastAvailableDay(ctx context.Context, regionID *int) (*time.Time, error)
	ListHolidays(ctx context.Context, from, to time.Time) ([]regions.Holiday, error)
	ListRegions(ctx context.Context) ([]regions.Region, error)
}

type Service struct {
	repo       Repository
	leadMonths int
	location   *time.Location
	now        func() time.Time
}

func NewService(repo Repository, leadMonths int, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{repo: repo, leadMonths: leadMonths, location: location, now: time.Now}
}

// DefaultMonth is the month shown when none is requested: the first month
// that can be booked.
func (s *Service) DefaultMonth() time.Time {
	today := dates.Today(s.now(), s.location)
	return time.Date(today.Year(), today.Month()+time.Month(s.leadMonths), 1, 0, 0, 0, 0, time.UTC)
}

// Month builds the calendar for the month containing month, optionally
// limited to one region. The reads run concurrently.
func (s *Service) Month(ctx context.Context, regionID *int, month time.Time) (*Month, error) {
	if month.IsZero() {
		month = s.DefaultMonth()
	}
	window := dates.MonthRange(month)
	earliest := dates.EarliestBookable(dates.Today(s.now(), s.location), s.leadMonths)

	var (
		comps    []Competition
		days     []time.Time
		last     *time.Time
		holidays []regions.Holiday
		regs     []regions.Region
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if comps, err = s.repo.ListCalendarCompetitions(gctx, regionID, window); err != nil {
			return fmt.Errorf("list competitions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if days, err = s.repo.AvailableDays(gctx, regionID, window); err != nil {
			return fmt.Errorf("list available days: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if last, err = s.repo.LastAvailableDay(gctx, regionID); err != nil {
			return fmt.Errorf("last available day: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if holidays, err = s.repo.ListHolidays(gctx, window.Start, window.End); err != nil {
			return fmt.Errorf("list holidays: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if regs, err = s.repo.ListRegions(gctx); err != nil {
			return fmt.Errorf("list regions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	available := make(map[time.Time]bool, len(days))
	for _, d := range days {
		available[dates.Day(d)] = true
	}
	holidayNames := make(map[time.Time]string, len(holidays))
	for _, h := range holidays {
		holidayNames[dates.Day(h.Date)] = h.Name
	}

	out := &Month{
		Month:            window.Start,
		RegionID:         regionID,
		EarliestBookable: earliest,
		LastAvailable:    last,
		Competitions:     comps,
		Regions:          regs,
	}
	for _, day := range window.Days() {
		entry := Day{Date: day, Status: classify(day, earliest, last, available[day])}
		if name, ok := holidayNames[day]; ok {
			entry.Holiday = &name
		}
		for _, c := range comps {
			if c.Range().Contains(day) {
				entry.Competitions = append(entry.Competitions, c)
			}
		}
		out.Days = append(out.Days, entry)
	}
	return out, nil
}

func classify(day, earliest time.Time, last *time.Time, available bool) DayStatus {
	if day.Before(earliest) || (last != nil && day.After(*last)) {
		return DayUnavailable
	}
	if available {
		return DayAvailable
	}
	return DayConditional
}
