// Package notifications defines the outbound messages queued by scheduling
// operations. Each type is a job payload; workers resolve the current
// competition and recipient details when the job runs.
package notifications

import "time"

// Job is a queued notification payload. It matches River's JobArgs.
type Job interface {
	Kind() string
}

// Kinds of notification jobs.
const (
	KindDelegateAssignment = "notify_delegate_assignment"
	KindUltimatum          = "notify_ultimatum"
)

// Change describes what happened to a delegate's assignment.
type Change string

const (
	ChangeAssigned Change = "assigned"
	ChangeRemoved  Change = "removed"
)

// DelegateAssignment tells a delegate they were added to or removed from a
// competition. City and dates are captured at enqueue time so removal
// notices still read correctly after later edits.
type DelegateAssignment struct {
	CompetitionID int64     `json:"competition_id"`
	DelegateWCAID string    `json:"delegate_wca_id"`
	Change        Change    `json:"change"`
	City          string    `json:"city"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

func (DelegateAssignment) Kind() string { return KindDelegateAssignment }

// Ultimatum tells every organizer of a competition about a deadline.
type Ultimatum struct {
	CompetitionID int64     `json:"competition_id"`
	Deadline      time.Time `json:"deadline"`
	Message       string    `json:"message,omitempty"`
}

func (Ultimatum) Kind() string { return KindUltimatum }

// Recipient is a resolved email recipient.
type Recipient struct {
	WCAID string
	Name  string
	Email string
}

// CompetitionSummary is what ultimatum emails show about a competition.
type CompetitionSummary struct {
	ID         int64
	Name       *string
	City       string
	StartDate  time.Time
	EndDate    time.Time
	Organizers []Recipient
}

// DisplayName is the competition name, or the city for unnamed requests.
func (c CompetitionSummary) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.City
}
