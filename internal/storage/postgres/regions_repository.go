package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/jackc/pgx/v5"
)

var _ regions.Repository = (*RegionRepository)(nil)

type RegionRepository struct {
	conn
}

func (r *RegionRepository) WithTx(ctx context.Context, fn func(context.Context, regions.Repository) error) error {
	return r.withTx(ctx, func(c conn) error {
		return fn(ctx, &RegionRepository{conn: c})
	})
}

func (r *RegionRepository) ListRegions(ctx context.Context) ([]regions.Region, error) {
	return listRegions(ctx, r.queryer())
}

func listRegions(ctx context.Context, q queryer) ([]regions.Region, error) {
	rows, err := q.Query(ctx, `
SELECT rg.id, rg.display_name, rg.map_color, s.id, s.name
  FROM regions rg
  LEFT JOIN states s ON s.region_id = rg.id
 ORDER BY rg.display_name, s.name
`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []regions.Region
	for rows.Next() {
		var region regions.Region
		var stateID, stateName *string
		if err := rows.Scan(&region.ID, &region.Name, &region.MapColor, &stateID, &stateName); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != region.ID {
			region.States = []regions.State{}
			out = append(out, region)
		}
		if stateID != nil {
			last := &out[len(out)-1]
			last.States = append(last.States, regions.State{ID: *stateID, Name: *stateName, RegionID: region.ID})
		}
	}
	return out, rows.Err()
}

func (r *RegionRepository) ListDelegates(ctx context.Context) ([]regions.Delegate, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT u.wca_id, u.name, u.email, u.avatar_url, u.region_id, rg.display_name
  FROM users u
  LEFT JOIN regions rg ON rg.id = u.region_id
 WHERE u.role = 'delegate'
 ORDER BY u.name, u.wca_id
`)
	if err != nil {
		return nil, fmt.Errorf("list delegates: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (regions.Delegate, error) {
		var d regions.Delegate
		err := row.Scan(&d.WCAID, &d.Name, &d.Email, &d.AvatarURL, &d.RegionID, &d.RegionName)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan delegates: %w", err)
	}
	return list, nil
}

func (r *RegionRepository) ListHolidays(ctx context.Context, from, to time.Time) ([]regions.Holiday, error) {
	return listHolidays(ctx, r.queryer(), from, to)
}

func listHolidays(ctx context.Context, q queryer, from, to time.Time) ([]regions.Holiday, error) {
	rows, err := q.Query(ctx, `SELECT date, name FROM holidays WHERE date BETWEEN $1 AND $2 ORDER BY date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (regions.Holiday, error) {
		var h regions.Holiday
		err := row.Scan(&h.Date, &h.Name)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan holidays: %w", err)
	}
	return list, nil
}

func (r *RegionRepository) UpsertRegion(ctx context.Context, name, mapColor string) (int, error) {
	var id int
	err := r.queryer().QueryRow(ctx, `
INSERT INTO regions (display_name, map_color)
VALUES ($1, COALESCE(NULLIF($2, ''), '#9ca3af'))
ON CONFLICT (display_name) DO UPDATE SET map_color = EXCLUDED.map_color
RETURNING id
`, name, mapColor).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert region: %w", err)
	}
	return id, nil
}

func (r *RegionRepository) UpsertState(ctx context.Context, state regions.State) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO states (id, name, region_id)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, region_id = EXCLUDED.region_id
`, state.ID, state.Name, state.RegionID)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (r *RegionRepository) UpsertHoliday(ctx context.Context, h regions.Holiday) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO holidays (date, name) VALUES ($1, $2)
ON CONFLICT (date) DO UPDATE SET name = EXCLUDED.name
`, h.Date, h.Name)
	if err != nil {
		return fmt.Errorf("upsert holiday: %w", err)
	}
	return nil
}
