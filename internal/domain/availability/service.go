// Package availability records the days delegates can travel to a
// competition and the ranges they cannot.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/sanitize"
	"github.com/ams-cubing/public-calendar/internal/validation"
	"github.com/rs/zerolog"
)

var ErrUnauthorized = errors.New("sign-in required")

const (
	msgNoDates        = "No se seleccionaron fechas"
	msgEndBeforeStart = "La fecha de fin debe ser igual o posterior a la fecha de inicio"
)

// UnavailabilityInput blocks a range of days.
type UnavailabilityInput struct {
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
	Note      *string   `json:"note,omitempty" validate:"omitempty,max=500"`
}

// Overview is everything the availability page shows for one user.
type Overview struct {
	Available      []time.Time
	Unavailability []Unavailability
	Assignments    []Assignment
	BusyDays       []time.Time
}

type Service struct {
	repo      Repository
	audit     *audit.Logger
	validator *validation.Validator
	logger    zerolog.Logger
}

func NewService(repo Repository, auditLogger *audit.Logger, validator *validation.Validator, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		audit:     auditLogger,
		validator: validator,
		logger:    logger.With().Str("component", "availability").Logger(),
	}
}

// SubmitAvailability stores the selected days. Days already stored are kept.
// It returns how many new rows were written.
func (s *Service) SubmitAvailability(ctx context.Context, actor auth.Actor, days []time.Time) (int64, error) {
	if actor.WCAID == "" {
		return 0, ErrUnauthorized
	}
	days = dates.Unique(days)
	if len(days) == 0 {
		return 0, noDates()
	}

	var inserted int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		n, err := tx.InsertAvailability(ctx, actor.WCAID, days)
		if err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
		inserted = n
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionSubmitAvailability,
			TargetType: audit.TargetAvailability,
			TargetID:   actor.WCAID,
			ActorID:    actor.WCAID,
			Details: map[string]any{
				"dates":    formatDays(days),
				"inserted": n,
			},
		})
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DeleteAvailability removes the selected days.
func (s *Service) DeleteAvailability(ctx context.Context, actor auth.Actor, days []time.Time) (int64, error) {
	if actor.WCAID == "" {
		return 0, ErrUnauthorized
	}
	days = dates.Unique(days)
	if len(days) == 0 {
		return 0, noDates()
	}

	var deleted int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		n, err := tx.DeleteAvailability(ctx, actor.WCAID, days)
		if err != nil {
			return fmt.Errorf("delete availability: %w", err)
		}
		deleted = n
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionDeleteAvailability,
			TargetType: audit.TargetAvailability,
			TargetID:   actor.WCAID,
			ActorID:    actor.WCAID,
			Details: map[string]any{
				"dates":   formatDays(days),
				"deleted": n,
			},
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// SubmitUnavailability blocks a date range.
func (s *Service) SubmitUnavailability(ctx context.Context, actor auth.Actor, in UnavailabilityInput) (int64, error) {
	if actor.WCAID == "" {
		return 0, ErrUnauthorized
	}
	in.StartDate = dates.Day(in.StartDate)
	in.EndDate = dates.Day(in.EndDate)
	in.Note = sanitize.OptionalText(in.Note)

	verr := &validation.Error{}
	if err := s.validator.Struct(in); err != nil {
		if !verr.Merge(err) {
			return 0, err
		}
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		verr.Add("endDate", msgEndBeforeStart)
	}
	if err := verr.OrNil(); err != nil {
		return 0, err
	}

	r := dates.Range{Start: in.StartDate, End: in.EndDate}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		id, err = tx.InsertUnavailability(ctx, actor.WCAID, r, in.Note)
		if err != nil {
			return fmt.Errorf("insert unavailability: %w", err)
		}
		details := map[string]any{
			"unavailabilityId": id,
			"startDate":        dates.Format(r.Start),
			"endDate":          dates.Format(r.End),
		}
		if in.Note != nil {
			details["note"] = *in.Note
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionSubmitUnavailability,
			TargetType: audit.TargetAvailability,
			TargetID:   actor.WCAID,
			ActorID:    actor.WCAID,
			Details:    details,
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Overview loads the user's availability, blocked ranges and assignments.
// BusyDays expands the assignments into individual days.
func (s *Service) Overview(ctx context.Context, actor auth.Actor) (*Overview, error) {
	if actor.WCAID == "" {
		return nil, ErrUnauthorized
	}
	available, err := s.repo.ListAvailability(ctx, actor.WCAID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	blocked, err := s.repo.ListUnavailability(ctx, actor.WCAID)
	if err != nil {
		return nil, fmt.Errorf("list unavailability: %w", err)
	}
	assignments, err := s.repo.DelegateAssignments(ctx, actor.WCAID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	var busy []time.Time
	for _, a := range assignments {
		busy = append(busy, dates.Range{Start: a.Start, End: a.End}.Days()...)
	}
	return &Overview{
		Available:      available,
		Unavailability: blocked,
		Assignments:    assignments,
		BusyDays:       dates.Unique(busy),
	}, nil
}

func noDates() error {
	verr := &validation.Error{}
	verr.Add("dates", msgNoDates)
	return verr
}

func formatDays(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = dates.Format(d)
	}
	return out
}
