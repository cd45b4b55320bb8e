package availability

import (
	"context"
	"errors"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
)

var ErrNotFound = errors.New("not found")

// Unavailability is a range a user blocked for competitions.
type Unavailability struct {
	ID        int64
	WCAID     string
	Start     time.Time
	End       time.Time
	Note      *string
	CreatedAt time.Time
}

// Range returns the blocked range.
func (u Unavailability) Range() dates.Range {
	return dates.Range{Start: u.Start, End: u.End}
}

// Assignment is a competition the user delegates.
type Assignment struct {
	CompetitionID int64
	Name          *string
	City          string
	Start         time.Time
	End           time.Time
}

type Repository interface {
	InsertAvailability(ctx context.Context, wcaID string, days []time.Time) (int64, error)
	DeleteAvailability(ctx context.Context, wcaID string, days []time.Time) (int64, error)
	ListAvailability(ctx context.Context, wcaID string) ([]time.Time, error)
	InsertUnavailability(ctx context.Context, wcaID string, r dates.Range, note *string) (int64, error)
	ListUnavailability(ctx context.Context, wcaID string) ([]Unavailability, error)
	DelegateAssignments(ctx context.Context, wcaID string) ([]Assignment, error)
	AppendLog(ctx context.Context, entry audit.Entry) error
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
