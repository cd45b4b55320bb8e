package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/jackc/pgx/v5"
)

// NotificationRepository resolves job payloads into recipients when a
// notification job runs.
type NotificationRepository struct {
	conn
}

func (r *NotificationRepository) Recipient(ctx context.Context, wcaID string) (*notifications.Recipient, error) {
	var rec notifications.Recipient
	err := r.queryer().QueryRow(ctx, `SELECT wca_id, name, email FROM users WHERE wca_id = $1`, wcaID).
		Scan(&rec.WCAID, &rec.Name, &rec.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return &rec, nil
}

func (r *NotificationRepository) CompetitionSummary(ctx context.Context, id int64) (*notifications.CompetitionSummary, error) {
	q := r.queryer()
	var c notifications.CompetitionSummary
	err := q.QueryRow(ctx, `SELECT id, name, city, start_date, end_date FROM competitions WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.City, &c.StartDate, &c.EndDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, competitions.ErrNotFound
		}
		return nil, fmt.Errorf("get competition summary: %w", err)
	}

	rows, err := q.Query(ctx, `
SELECT u.wca_id, u.name, u.email
  FROM competition_organizers co
  JOIN users u ON u.wca_id = co.organizer_wca_id
 WHERE co.competition_id = $1
 ORDER BY co.is_primary DESC, u.name
`, id)
	if err != nil {
		return nil, fmt.Errorf("list organizers: %w", err)
	}
	c.Organizers, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.Recipient, error) {
		var rec notifications.Recipient
		err := row.Scan(&rec.WCAID, &rec.Name, &rec.Email)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan organizers: %w", err)
	}
	return &c, nil
}
