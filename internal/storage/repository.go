// Package storage names the data access surface the server is wired with.
// The postgres subpackage is the only implementation.
package storage

import (
	"context"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/activity"
	"github.com/ams-cubing/public-calendar/internal/domain/availability"
	"github.com/ams-cubing/public-calendar/internal/domain/calendar"
	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Competitions() competitions.Repository
	Availability() availability.Repository
	Calendar() calendar.Repository
	Regions() regions.Repository
	Users() users.Repository
	Activity() activity.Repository
	Sessions() auth.SessionStore

	Ping(ctx context.Context) error
}
