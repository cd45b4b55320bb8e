package auth

import "strings"

type Role string

const (
	RoleUser     Role = "user"
	RoleDelegate Role = "delegate"
	RoleAdmin    Role = "admin"
)

func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleDelegate):
		return RoleDelegate
	default:
		return RoleUser
	}
}

// Valid reports whether role is one of the known roles, without normalizing.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleDelegate || r == RoleAdmin
}

func HasRole(role Role, allowed ...Role) bool {
	current := NormalizeRole(string(role))
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

func IsAdmin(role Role) bool {
	return NormalizeRole(string(role)) == RoleAdmin
}

// Actor is the signed-in user performing a request.
type Actor struct {
	WCAID string
	Name  string
	Email string
	Role  Role
}

// CanManageCompetitions reports whether the actor may use the panel.
func (a Actor) CanManageCompetitions() bool {
	return HasRole(a.Role, RoleDelegate, RoleAdmin)
}
