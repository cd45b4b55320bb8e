package users

import (
	"context"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
)

// User is an account known to the association: anyone who signed in with the
// WCA or was imported by a delegate.
type User struct {
	WCAID      string     `json:"wcaId"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	AvatarURL  *string    `json:"avatarUrl,omitempty"`
	Role       auth.Role  `json:"role"`
	RegionID   *int       `json:"regionId,omitempty"`
	RegionName *string    `json:"regionName,omitempty"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Actor returns the user as a request actor.
func (u User) Actor() auth.Actor {
	return auth.Actor{WCAID: u.WCAID, Name: u.Name, Email: u.Email, Role: auth.NormalizeRole(string(u.Role))}
}

type Repository interface {
	GetUser(ctx context.Context, wcaID string) (*User, error)
	UpsertUser(ctx context.Context, user User) (*User, error)
	InsertUser(ctx context.Context, user User) error
	SearchUsers(ctx context.Context, query string, limit int) ([]User, error)
	UpdateUserProfile(ctx context.Context, wcaID string, role auth.Role, regionID *int) error
	RegionExists(ctx context.Context, id int) (bool, error)
	AppendLog(ctx context.Context, entry audit.Entry) error
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
