package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/jackc/pgx/v5"
)

var _ auth.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	conn
}

func (r *SessionRepository) CreateSession(ctx context.Context, s auth.Session) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO sessions (token_hash, user_wca_id, expires_at, ip_address, user_agent)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
`, s.TokenHash, s.UserWCAID, s.ExpiresAt, s.IPAddress, s.UserAgent)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ActorForSession(ctx context.Context, tokenHash string, now time.Time) (*auth.Actor, error) {
	var actor auth.Actor
	var role string
	err := r.queryer().QueryRow(ctx, `
SELECT u.wca_id, u.name, u.email, u.role
  FROM sessions s
  JOIN users u ON u.wca_id = s.user_wca_id
 WHERE s.token_hash = $1
   AND s.expires_at > $2
`, tokenHash, now).Scan(&actor.WCAID, &actor.Name, &actor.Email, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	actor.Role = auth.NormalizeRole(role)
	return &actor, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
