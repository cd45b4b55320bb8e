// Package competitions implements competition scheduling: organizer date
// requests with automatic delegate matching, panel management of the
// competition lifecycle, and ultimatums to organizers.
//
// Every mutating operation runs in one transaction that also writes the
// audit log entry and queues the notification jobs, so none of them exist
// unless the change commits.
package competitions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/sanitize"
	"github.com/ams-cubing/public-calendar/internal/validation"
	"github.com/rs/zerolog"
)

var (
	ErrForbidden     = errors.New("not allowed to manage competitions")
	ErrUnauthorized  = errors.New("sign-in required")
	ErrQuotaExceeded = errors.New("date request quota exceeded")
)

const (
	msgAssigned   = "Solicitud creada exitosamente. Delegado asignado: %s"
	msgUnassigned = "Solicitud creada. No hay delegados disponibles, se asignará manualmente."
)

// QuotaError reports a requester who reached the request limit.
type QuotaError struct {
	Limit   int
	RetryAt time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("date request quota exceeded: %d per window, retry after %s", e.Limit, e.RetryAt.Format(time.RFC3339))
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Policy is the date-request policy.
type Policy struct {
	LeadMonths        int
	MaxRequestsPerDay int
	QuotaWindow       time.Duration
	Location          *time.Location
}

// DefaultPolicy matches the association's rules: three months of notice and
// three requests per requester per day.
func DefaultPolicy() Policy {
	return Policy{LeadMonths: 3, MaxRequestsPerDay: 3, QuotaWindow: 24 * time.Hour, Location: time.UTC}
}

// Quota is the requester's remaining allowance.
type Quota struct {
	Limit     int
	Used      int
	Remaining int
	ResetsAt  *time.Time
}

// RequestResult is the outcome of a date request.
type RequestResult struct {
	CompetitionID int64
	Delegate      *Candidate
	Message       string
}

type Service struct {
	repo      Repository
	audit     *audit.Logger
	validator *validation.Validator
	policy    Policy
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, auditLogger *audit.Logger, validator *validation.Validator, policy Policy, logger zerolog.Logger) *Service {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.QuotaWindow <= 0 {
		policy.QuotaWindow = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		audit:     auditLogger,
		validator: validator,
		policy:    policy,
		logger:    logger.With().Str("component", "competitions").Logger(),
		now:       time.Now,
	}
}

// Policy returns the active date-request policy.
func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) today() time.Time {
	return dates.Today(s.now(), s.policy.Location)
}

func (s *Service) earliestBookable() time.Time {
	return dates.EarliestBookable(s.today(), s.policy.LeadMonths)
}

// EarliestBookable is the first day an organizer may request.
func (s *Service) EarliestBookable() time.Time {
	return s.earliestBookable()
}

// RequestQuota reports how many date requests the actor has left.
func (s *Service) RequestQuota(ctx context.Context, actor auth.Actor) (Quota, error) {
	if actor.WCAID == "" {
		return Quota{}, ErrUnauthorized
	}
	return s.quota(ctx, s.repo, actor.WCAID)
}

func (s *Service) quota(ctx context.Context, repo Repository, wcaID string) (Quota, error) {
	used, oldest, err := repo.CountRequestsSince(ctx, wcaID, s.now().Add(-s.policy.QuotaWindow))
	if err != nil {
		return Quota{}, fmt.Errorf("count date requests: %w", err)
	}
	quota := Quota{Limit: s.policy.MaxRequestsPerDay, Used: used}
	if remaining := s.policy.MaxRequestsPerDay - used; remaining > 0 {
		quota.Remaining = remaining
	}
	if oldest != nil {
		resets := oldest.Add(s.policy.QuotaWindow)
		quota.ResetsAt = &resets
	}
	return quota, nil
}

// RequestDate records an organizer's date request and assigns the first free
// delegate of the state's region, if any.
func (s *Service) RequestDate(ctx context.Context, actor auth.Actor, req DateRequest) (*RequestResult, error) {
	if actor.WCAID == "" {
		return nil, ErrUnauthorized
	}
	req.normalize()
	if err := s.validateDateRequest(req); err != nil {
		return nil, err
	}

	state, err := s.repo.GetState(ctx, req.StateID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("get state %s: %w", req.StateID, err)
	}

	window := dates.Range{Start: req.StartDate, End: req.EndDate}
	requester := actor.WCAID
	result := &RequestResult{}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		// Concurrent requests of one user serialize here so the count holds
		// until commit.
		if err := tx.LockRequester(ctx, requester); err != nil {
			return fmt.Errorf("lock requester: %w", err)
		}
		quota, err := s.quota(ctx, tx, requester)
		if err != nil {
			return err
		}
		if quota.Remaining == 0 {
			retryAt := s.now().Add(s.policy.QuotaWindow)
			if quota.ResetsAt != nil {
				retryAt = *quota.ResetsAt
			}
			return &QuotaError{Limit: quota.Limit, RetryAt: retryAt}
		}

		candidates, err := tx.LockCandidates(ctx, state.RegionID, window)
		if err != nil {
			return fmt.Errorf("load delegate candidates: %w", err)
		}
		chosen := SelectDelegate(candidates, window)

		id, err := tx.Insert(ctx, Record{
			City:           req.City,
			StateID:        state.ID,
			RequestedBy:    &requester,
			StartDate:      window.Start,
			EndDate:        window.End,
			StatusPublic:   PublicReserved,
			StatusInternal: InternalAskedForHelp,
		})
		if err != nil {
			return fmt.Errorf("insert competition: %w", err)
		}
		result.CompetitionID = id

		if err := tx.ReplaceOrganizers(ctx, id, []Assignment{{WCAID: requester, IsPrimary: true}}); err != nil {
			return fmt.Errorf("assign organizer: %w", err)
		}

		details := map[string]any{
			"city":      req.City,
			"stateId":   state.ID,
			"startDate": dates.Format(window.Start),
			"endDate":   dates.Format(window.End),
		}

		if chosen != nil {
			if err := tx.ReplaceDelegates(ctx, id, []Assignment{{WCAID: chosen.WCAID, IsPrimary: true}}); err != nil {
				return fmt.Errorf("assign delegate: %w", err)
			}
			if _, err := tx.ConsumeAvailability(ctx, []string{chosen.WCAID}, window); err != nil {
				return fmt.Errorf("consume availability: %w", err)
			}
			if err := tx.Enqueue(ctx, assignmentNotice(id, chosen.WCAID, notifications.ChangeAssigned, req.City, window)); err != nil {
				return fmt.Errorf("enqueue delegate notification: %w", err)
			}
			details["delegateWcaId"] = chosen.WCAID
			result.Delegate = chosen
		}

		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionRequestDate,
			TargetType: audit.TargetCompetition,
			TargetID:   strconv.FormatInt(id, 10),
			ActorID:    actor.WCAID,
			Details:    details,
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Delegate != nil {
		result.Message = fmt.Sprintf(msgAssigned, result.Delegate.Name)
	} else {
		result.Message = msgUnassigned
	}

	s.logger.Info().
		Int64("competition_id", result.CompetitionID).
		Str("requested_by", actor.WCAID).
		Bool("delegate_assigned", result.Delegate != nil).
		Msg("date request recorded")
	return result, nil
}

// Create adds a competition from the panel form.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (*Competition, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	var created *Competition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.checkUsersExist(ctx, tx, in); err != nil {
			return err
		}
		if _, err := tx.GetState(ctx, in.StateID); err != nil {
			return err
		}

		requester := actor.WCAID
		id, err := tx.Insert(ctx, in.record(&requester))
		if err != nil {
			return fmt.Errorf("insert competition: %w", err)
		}
		if err := s.writeAssignments(ctx, tx, id, in); err != nil {
			return err
		}

		window := dates.Range{Start: in.StartDate, End: in.EndDate}
		jobs := make([]notifications.Job, 0, len(in.DelegateWCAIDs))
		for _, delegate := range in.DelegateWCAIDs {
			jobs = append(jobs, assignmentNotice(id, delegate, notifications.ChangeAssigned, in.City, window))
		}
		if err := tx.Enqueue(ctx, jobs...); err != nil {
			return fmt.Errorf("enqueue delegate notifications: %w", err)
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionCreateCompetition,
			TargetType: audit.TargetCompetition,
			TargetID:   strconv.FormatInt(id, 10),
			ActorID:    actor.WCAID,
			Details:    inputDetails(in),
		}); err != nil {
			return err
		}

		created, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces a competition's fields, delegates and organizers.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id int64, in Input) (*Competition, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	var updated *Competition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		previous, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkUsersExist(ctx, tx, in); err != nil {
			return err
		}
		if _, err := tx.GetState(ctx, in.StateID); err != nil {
			return err
		}

		added, removed := DiffDelegates(personIDs(previous.Delegates), in.DelegateWCAIDs)

		if err := tx.Update(ctx, id, in.record(previous.RequestedBy)); err != nil {
			return fmt.Errorf("update competition: %w", err)
		}
		if err := s.writeAssignments(ctx, tx, id, in); err != nil {
			return err
		}

		window := dates.Range{Start: in.StartDate, End: in.EndDate}
		jobs := make([]notifications.Job, 0, len(added)+len(removed))
		for _, delegate := range added {
			jobs = append(jobs, assignmentNotice(id, delegate, notifications.ChangeAssigned, in.City, window))
		}
		for _, delegate := range removed {
			jobs = append(jobs, assignmentNotice(id, delegate, notifications.ChangeRemoved, previous.City, previous.Range()))
		}
		if err := tx.Enqueue(ctx, jobs...); err != nil {
			return fmt.Errorf("enqueue delegate notifications: %w", err)
		}

		details := inputDetails(in)
		details["addedDelegates"] = added
		details["removedDelegates"] = removed
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionUpdateCompetition,
			TargetType: audit.TargetCompetition,
			TargetID:   strconv.FormatInt(id, 10),
			ActorID:    actor.WCAID,
			Details:    details,
		}); err != nil {
			return err
		}

		updated, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a competition together with its assignments.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id int64) error {
	if !actor.CanManageCompetitions() {
		return ErrForbidden
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		existing, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete competition: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionDeleteCompetition,
			TargetType: audit.TargetCompetition,
			TargetID:   strconv.FormatInt(id, 10),
			ActorID:    actor.WCAID,
			Details: map[string]any{
				"name":      existing.DisplayName(),
				"city":      existing.City,
				"startDate": dates.Format(existing.StartDate),
				"endDate":   dates.Format(existing.EndDate),
			},
		})
	})
}

// SendUltimatum stamps the competition and notifies its organizers.
func (s *Service) SendUltimatum(ctx context.Context, actor auth.Actor, id int64, in UltimatumInput) error {
	if !actor.CanManageCompetitions() {
		return ErrForbidden
	}
	in.Message = sanitize.Lines(in.Message)
	in.Deadline = dates.Day(in.Deadline)
	if err := s.validateUltimatum(in); err != nil {
		return err
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		if err := tx.MarkUltimatumSent(ctx, id, s.now().UTC(), in.Deadline); err != nil {
			return fmt.Errorf("mark ultimatum: %w", err)
		}
		if err := tx.Enqueue(ctx, notifications.Ultimatum{
			CompetitionID: id,
			Deadline:      in.Deadline,
			Message:       in.Message,
		}); err != nil {
			return fmt.Errorf("enqueue ultimatum: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionSendUltimatum,
			TargetType: audit.TargetCompetition,
			TargetID:   strconv.FormatInt(id, 10),
			ActorID:    actor.WCAID,
			Details: map[string]any{
				"deadline": dates.Format(in.Deadline),
				"message":  in.Message,
			},
		})
	})
}

// Get returns one competition with delegates and organizers.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (*Competition, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	return s.repo.Get(ctx, id)
}

// ListAll returns every competition for the panel.
func (s *Service) ListAll(ctx context.Context, actor auth.Actor) ([]Competition, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, Filters{})
}

// ListRequestedBy returns the competitions the actor requested.
func (s *Service) ListRequestedBy(ctx context.Context, actor auth.Actor) ([]Competition, error) {
	if actor.WCAID == "" {
		return nil, ErrUnauthorized
	}
	requester := actor.WCAID
	return s.repo.List(ctx, Filters{RequestedBy: &requester})
}

func (s *Service) writeAssignments(ctx context.Context, tx Repository, id int64, in Input) error {
	if err := tx.ReplaceDelegates(ctx, id, assignments(in.DelegateWCAIDs, in.PrimaryDelegateWCAID)); err != nil {
		return fmt.Errorf("replace delegates: %w", err)
	}
	window := dates.Range{Start: in.StartDate, End: in.EndDate}
	if _, err := tx.ConsumeAvailability(ctx, in.DelegateWCAIDs, window); err != nil {
		return fmt.Errorf("consume availability: %w", err)
	}
	if err := tx.ReplaceOrganizers(ctx, id, assignments(in.OrganizerWCAIDs, in.PrimaryOrganizerWCAID)); err != nil {
		return fmt.Errorf("replace organizers: %w", err)
	}
	return nil
}

func (s *Service) checkUsersExist(ctx context.Context, tx Repository, in Input) error {
	ids := append(append([]string{}, in.DelegateWCAIDs...), in.OrganizerWCAIDs...)
	names, err := tx.UserNames(ctx, ids)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	verr := &validation.Error{}
	for _, id := range in.DelegateWCAIDs {
		if _, ok := names[id]; !ok {
			verr.Add("delegateWcaIds", msgUnknownUser+id)
		}
	}
	for _, id := range in.OrganizerWCAIDs {
		if _, ok := names[id]; !ok {
			verr.Add("organizerWcaIds", msgUnknownUser+id)
		}
	}
	return verr.OrNil()
}

func assignmentNotice(id int64, wcaID string, change notifications.Change, city string, window dates.Range) notifications.DelegateAssignment {
	return notifications.DelegateAssignment{
		CompetitionID: id,
		DelegateWCAID: wcaID,
		Change:        change,
		City:          city,
		StartDate:     window.Start,
		EndDate:       window.End,
	}
}

func inputDetails(in Input) map[string]any {
	details := map[string]any{
		"city":           in.City,
		"stateId":        in.StateID,
		"startDate":      dates.Format(in.StartDate),
		"endDate":        dates.Format(in.EndDate),
		"statusPublic":   string(in.StatusPublic),
		"statusInternal": string(in.StatusInternal),
		"delegates":      in.DelegateWCAIDs,
		"organizers":     in.OrganizerWCAIDs,
	}
	if in.Name != nil {
		details["name"] = *in.Name
	}
	return details
}
