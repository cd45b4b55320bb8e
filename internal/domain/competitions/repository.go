package competitions

import (
	"context"
	"errors"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
)

var (
	ErrNotFound      = errors.New("competition not found")
	ErrStateNotFound = errors.New("state not found")
)

type Competition struct {
	ID                int64
	Name              *string
	City              string
	StateID           string
	StateName         string
	RegionID          int
	RegionName        string
	RegionColor       string
	RequestedBy       *string
	TrelloURL         *string
	WCACompetitionURL *string
	Capacity          *int
	StartDate         time.Time
	EndDate           time.Time
	StatusPublic      PublicStatus
	StatusInternal    InternalStatus
	Notes             *string
	UltimatumSentAt   *time.Time
	UltimatumDeadline *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Delegates         []Person
	Organizers        []Person
}

// Range returns the competition's inclusive date span.
func (c Competition) Range() dates.Range {
	return dates.Range{Start: c.StartDate, End: c.EndDate}
}

// DisplayName is the competition name, or the city for unnamed requests.
func (c Competition) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.City
}

// Person is a delegate or organizer attached to a competition.
type Person struct {
	WCAID     string
	Name      string
	Email     string
	AvatarURL *string
	IsPrimary bool
}

// State is the slice of state data needed to route a request to a region.
type State struct {
	ID       string
	Name     string
	RegionID int
}

// Candidate is a delegate of the requested region together with everything
// that keeps them busy around the requested dates.
type Candidate struct {
	WCAID string
	Name  string
	Email string
	Busy  []dates.Range
}

// Record holds the columns written on insert and update.
type Record struct {
	Name              *string
	City              string
	StateID           string
	RequestedBy       *string
	TrelloURL         *string
	WCACompetitionURL *string
	Capacity          *int
	StartDate         time.Time
	EndDate           time.Time
	StatusPublic      PublicStatus
	StatusInternal    InternalStatus
	Notes             *string
}

// Assignment links a user to a competition as delegate or organizer.
type Assignment struct {
	WCAID     string
	IsPrimary bool
}

type Filters struct {
	RequestedBy *string
	RegionID    *int
	Window      *dates.Range
}

type Repository interface {
	GetState(ctx context.Context, stateID string) (*State, error)
	// CountRequestsSince counts competitions requested by the user since the
	// given instant and returns the creation time of the oldest one counted.
	CountRequestsSince(ctx context.Context, wcaID string, since time.Time) (int, *time.Time, error)
	// LockRequester holds a transaction-scoped lock on the requesting user.
	LockRequester(ctx context.Context, wcaID string) error
	// LockCandidates row-locks the delegates of a region, ordered by name then
	// WCA id, and loads their unavailability and assignments overlapping window.
	LockCandidates(ctx context.Context, regionID int, window dates.Range) ([]Candidate, error)

	Get(ctx context.Context, id int64) (*Competition, error)
	List(ctx context.Context, filters Filters) ([]Competition, error)
	Insert(ctx context.Context, record Record) (int64, error)
	Update(ctx context.Context, id int64, record Record) error
	Delete(ctx context.Context, id int64) error
	ReplaceDelegates(ctx context.Context, id int64, delegates []Assignment) error
	ReplaceOrganizers(ctx context.Context, id int64, organizers []Assignment) error
	// ConsumeAvailability deletes availability rows of the users inside the range.
	ConsumeAvailability(ctx context.Context, wcaIDs []string, r dates.Range) (int64, error)
	MarkUltimatumSent(ctx context.Context, id int64, sentAt, deadline time.Time) error
	UserNames(ctx context.Context, wcaIDs []string) (map[string]string, error)

	AppendLog(ctx context.Context, entry audit.Entry) error
	Enqueue(ctx context.Context, jobs ...notifications.Job) error

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
