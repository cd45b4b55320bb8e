package postgres

import (
	"context"
	"fmt"

	"github.com/ams-cubing/public-calendar/internal/domain/activity"
	"github.com/jackc/pgx/v5"
)

var _ activity.Repository = (*ActivityRepository)(nil)

type ActivityRepository struct {
	conn
}

func (r *ActivityRepository) RecentLogs(ctx context.Context, limit int) ([]activity.Row, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT l.id, l.action, l.target_type, l.target_id, l.actor_id, l.details, l.created_at, u.name
  FROM logs l
  LEFT JOIN users u ON u.wca_id = l.actor_id
 ORDER BY l.created_at DESC, l.id DESC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.Row, error) {
		var r activity.Row
		err := row.Scan(&r.ID, &r.Action, &r.TargetType, &r.TargetID, &r.ActorID, &r.Details, &r.CreatedAt, &r.ActorName)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}
	return list, nil
}

func (r *ActivityRepository) CompetitionRefs(ctx context.Context, ids []int64) (map[int64]activity.CompetitionRef, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, city, start_date, end_date FROM competitions WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, fmt.Errorf("competition refs: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]activity.CompetitionRef, len(ids))
	for rows.Next() {
		var c activity.CompetitionRef
		if err := rows.Scan(&c.ID, &c.Name, &c.City, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("scan competition ref: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (r *ActivityRepository) UserNames(ctx context.Context, wcaIDs []string) (map[string]string, error) {
	return userNames(ctx, r.queryer(), wcaIDs)
}
