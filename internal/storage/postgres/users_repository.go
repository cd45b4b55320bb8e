package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/jackc/pgx/v5"
)

var _ users.Repository = (*UserRepository)(nil)

type UserRepository struct {
	conn
}

func (r *UserRepository) WithTx(ctx context.Context, fn func(context.Context, users.Repository) error) error {
	return r.withTx(ctx, func(c conn) error {
		return fn(ctx, &UserRepository{conn: c})
	})
}

const userColumns = `
SELECT u.wca_id, u.name, u.email, u.avatar_url, u.role, u.region_id, rg.display_name,
       u.last_login, u.created_at, u.updated_at
  FROM users u
  LEFT JOIN regions rg ON rg.id = u.region_id
`

func scanUser(row pgx.Row) (users.User, error) {
	var u users.User
	var role string
	err := row.Scan(&u.WCAID, &u.Name, &u.Email, &u.AvatarURL, &role, &u.RegionID, &u.RegionName,
		&u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	u.Role = auth.NormalizeRole(role)
	return u, err
}

func (r *UserRepository) GetUser(ctx context.Context, wcaID string) (*users.User, error) {
	u, err := scanUser(r.queryer().QueryRow(ctx, userColumns+` WHERE u.wca_id = $1`, wcaID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) UpsertUser(ctx context.Context, u users.User) (*users.User, error) {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO users (wca_id, name, email, avatar_url, role, region_id, last_login)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (wca_id) DO UPDATE
   SET name = EXCLUDED.name,
       email = EXCLUDED.email,
       avatar_url = EXCLUDED.avatar_url,
       role = EXCLUDED.role,
       last_login = EXCLUDED.last_login,
       updated_at = now()
`, u.WCAID, u.Name, u.Email, u.AvatarURL, string(u.Role), u.RegionID, u.LastLogin)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return r.GetUser(ctx, u.WCAID)
}

func (r *UserRepository) InsertUser(ctx context.Context, u users.User) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO users (wca_id, name, email, avatar_url, role)
VALUES ($1, $2, $3, $4, $5)
`, u.WCAID, u.Name, u.Email, u.AvatarURL, string(u.Role))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %s: already exists: %w", u.WCAID, err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) SearchUsers(ctx context.Context, query string, limit int) ([]users.User, error) {
	rows, err := r.queryer().Query(ctx, userColumns+`
 WHERE $1 = '' OR u.name ILIKE '%' || $1 || '%' OR u.wca_id ILIKE '%' || $1 || '%'
 ORDER BY u.name, u.wca_id
 LIMIT $2
`, escapeLike(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (users.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return list, nil
}

func (r *UserRepository) UpdateUserProfile(ctx context.Context, wcaID string, role auth.Role, regionID *int) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE users SET role = $2, region_id = $3, updated_at = now() WHERE wca_id = $1
`, wcaID, string(role), regionID)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) RegionExists(ctx context.Context, id int) (bool, error) {
	var exists bool
	if err := r.queryer().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM regions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("region exists: %w", err)
	}
	return exists, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	var out []rune
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
