package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/calendar"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ calendar.Repository = (*CalendarRepository)(nil)

type CalendarRepository struct {
	conn
}

func (r *CalendarRepository) ListCalendarCompetitions(ctx context.Context, regionID *int, window dates.Range) ([]calendar.Competition, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT c.id, c.name, c.city, s.name, rg.id, rg.display_name, rg.map_color, c.start_date, c.end_date, c.status_public
  FROM competitions c
  JOIN states s ON s.id = c.state_id
  JOIN regions rg ON rg.id = s.region_id
 WHERE ($1::int IS NULL OR rg.id = $1)
   AND c.start_date <= $3
   AND c.end_date >= $2
 ORDER BY c.start_date, c.id
`, regionID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("list calendar competitions: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (calendar.Competition, error) {
		var c calendar.Competition
		err := row.Scan(&c.ID, &c.Name, &c.City, &c.StateName, &c.RegionID, &c.RegionName, &c.RegionColor,
			&c.StartDate, &c.EndDate, &c.Status)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan calendar competitions: %w", err)
	}
	return list, nil
}

func (r *CalendarRepository) AvailableDays(ctx context.Context, regionID *int, window dates.Range) ([]time.Time, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT DISTINCT a.date
  FROM availability a
  JOIN users u ON u.wca_id = a.user_wca_id
 WHERE u.region_id IS NOT NULL
   AND ($1::int IS NULL OR u.region_id = $1)
   AND a.date BETWEEN $2 AND $3
 ORDER BY a.date
`, regionID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("available days: %w", err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan available days: %w", err)
	}
	return days, nil
}

func (r *CalendarRepository) LastAvailableDay(ctx context.Context, regionID *int) (*time.Time, error) {
	var last pgtype.Date
	err := r.queryer().QueryRow(ctx, `
SELECT max(a.date)
  FROM availability a
  JOIN users u ON u.wca_id = a.user_wca_id
 WHERE u.region_id IS NOT NULL
   AND ($1::int IS NULL OR u.region_id = $1)
`, regionID).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("last available day: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

func (r *CalendarRepository) ListHolidays(ctx context.Context, from, to time.Time) ([]regions.Holiday, error) {
	return listHolidays(ctx, r.queryer(), from, to)
}

func (r *CalendarRepository) ListRegions(ctx context.Context) ([]regions.Region, error) {
	return listRegions(ctx, r.queryer())
}
