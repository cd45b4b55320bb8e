package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/availability"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/jackc/pgx/v5"
)

var _ availability.Repository = (*AvailabilityRepository)(nil)

type AvailabilityRepository struct {
	conn
}

func (r *AvailabilityRepository) WithTx(ctx context.Context, fn func(context.Context, availability.Repository) error) error {
	return r.withTx(ctx, func(c conn) error {
		return fn(ctx, &AvailabilityRepository{conn: c})
	})
}

func (r *AvailabilityRepository) InsertAvailability(ctx context.Context, wcaID string, days []time.Time) (int64, error) {
	if len(days) == 0 {
		return 0, nil
	}
	tag, err := r.queryer().Exec(ctx, `
INSERT INTO availability (user_wca_id, date)
SELECT $1, d FROM unnest($2::date[]) AS d
ON CONFLICT (user_wca_id, date) DO NOTHING
`, wcaID, days)
	if err != nil {
		return 0, fmt.Errorf("insert availability: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AvailabilityRepository) DeleteAvailability(ctx context.Context, wcaID string, days []time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM availability WHERE user_wca_id = $1 AND date = ANY($2::date[])
`, wcaID, days)
	if err != nil {
		return 0, fmt.Errorf("delete availability: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AvailabilityRepository) ListAvailability(ctx context.Context, wcaID string) ([]time.Time, error) {
	rows, err := r.queryer().Query(ctx, `SELECT date FROM availability WHERE user_wca_id = $1 ORDER BY date`, wcaID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan availability: %w", err)
	}
	return days, nil
}

func (r *AvailabilityRepository) InsertUnavailability(ctx context.Context, wcaID string, rng dates.Range, note *string) (int64, error) {
	var id int64
	err := r.queryer().QueryRow(ctx, `
INSERT INTO unavailability (user_wca_id, start_date, end_date, note)
VALUES ($1, $2, $3, $4)
RETURNING id
`, wcaID, rng.Start, rng.End, note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert unavailability: %w", err)
	}
	return id, nil
}

func (r *AvailabilityRepository) ListUnavailability(ctx context.Context, wcaID string) ([]availability.Unavailability, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, user_wca_id, start_date, end_date, note, created_at
  FROM unavailability
 WHERE user_wca_id = $1
 ORDER BY start_date, id
`, wcaID)
	if err != nil {
		return nil, fmt.Errorf("list unavailability: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (availability.Unavailability, error) {
		var u availability.Unavailability
		err := row.Scan(&u.ID, &u.WCAID, &u.Start, &u.End, &u.Note, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan unavailability: %w", err)
	}
	return list, nil
}

func (r *AvailabilityRepository) DelegateAssignments(ctx context.Context, wcaID string) ([]availability.Assignment, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT c.id, c.name, c.city, c.start_date, c.end_date
  FROM competition_delegates cd
  JOIN competitions c ON c.id = cd.competition_id
 WHERE cd.delegate_wca_id = $1
 ORDER BY c.start_date, c.id
`, wcaID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (availability.Assignment, error) {
		var a availability.Assignment
		err := row.Scan(&a.CompetitionID, &a.Name, &a.City, &a.Start, &a.End)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan assignments: %w", err)
	}
	return list, nil
}
