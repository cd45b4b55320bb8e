package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/ams-cubing/public-calendar/internal/email"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	recipients   map[string]notifications.Recipient
	competitions map[int64]notifications.CompetitionSummary
	err          error
}

func (s stubLookup) Recipient(_ context.Context, wcaID string) (*notifications.Recipient, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.recipients[wcaID]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return &r, nil
}

func (s stubLookup) CompetitionSummary(_ context.Context, id int64) (*notifications.CompetitionSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.competitions[id]
	if !ok {
		return nil, competitions.ErrNotFound
	}
	return &c, nil
}

type sentMail struct {
	kind    string
	to      string
	city    string
	message string
}

type stubMailer struct {
	sent []sentMail
	err  error
}

func (m *stubMailer) SendDelegateAssigned(_ context.Context, to notifications.Recipient, comp email.Assignment) error {
	m.sent = append(m.sent, sentMail{kind: "assigned", to: to.WCAID, city: comp.City})
	return m.err
}

func (m *stubMailer) SendDelegateRemoved(_ context.Context, to notifications.Recipient, comp email.Assignment) error {
	m.sent = append(m.sent, sentMail{kind: "removed", to: to.WCAID, city: comp.City})
	return m.err
}

func (m *stubMailer) SendUltimatum(_ context.Context, to notifications.Recipient, comp notifications.CompetitionSummary, _ time.Time, message string) error {
	m.sent = append(m.sent, sentMail{kind: "ultimatum", to: to.WCAID, city: comp.City, message: message})
	return m.err
}

type stubQueue struct {
	params []river.InsertManyParams
}

func (q *stubQueue) InsertMany(_ context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	q.params = append(q.params, params...)
	return nil, nil
}

func newJob[T river.JobArgs](id int64, args T) *river.Job[T] {
	return &river.Job[T]{JobRow: &rivertype.JobRow{ID: id, Kind: args.Kind(), Attempt: 1, MaxAttempts: 8}, Args: args}
}

func fixtureLookup() stubLookup {
	name := "Guadalajara Open 2027"
	return stubLookup{
		recipients: map[string]notifications.Recipient{
			"2010ALFA01": {WCAID: "2010ALFA01", Name: "Alfa", Email: "alfa@example.com"},
			"2019ORGA01": {WCAID: "2019ORGA01", Name: "Olga", Email: "olga@example.com"},
			"2019ORGA02": {WCAID: "2019ORGA02", Name: "Oscar", Email: "oscar@example.com"},
		},
		competitions: map[int64]notifications.CompetitionSummary{
			1: {ID: 1, Name: &name, City: "Guadalajara", Organizers: []notifications.Recipient{
				{WCAID: "2019ORGA01"}, {WCAID: "2019ORGA02"},
			}},
		},
	}
}

var quietLogger = slog.New(slog.DiscardHandler)

func TestDelegateAssignmentWorker(t *testing.T) {
	mailer := &stubMailer{}
	worker := &DelegateAssignmentWorker{Lookup: fixtureLookup(), Mailer: mailer, Logger: quietLogger}
	ctx := context.Background()

	require.NoError(t, worker.Work(ctx, newJob(1, notifications.DelegateAssignment{
		CompetitionID: 1, DelegateWCAID: "2010ALFA01", Change: notifications.ChangeAssigned, City: "Guadalajara",
	})))
	require.NoError(t, worker.Work(ctx, newJob(2, notifications.DelegateAssignment{
		CompetitionID: 1, DelegateWCAID: "2010ALFA01", Change: notifications.ChangeRemoved, City: "Zapopan",
	})))

	require.Equal(t, []sentMail{
		{kind: "assigned", to: "2010ALFA01", city: "Guadalajara"},
		{kind: "removed", to: "2010ALFA01", city: "Zapopan"},
	}, mailer.sent)
}

func TestDelegateAssignmentWorker_CancelsUnknownDelegate(t *testing.T) {
	worker := &DelegateAssignmentWorker{Lookup: fixtureLookup(), Mailer: &stubMailer{}, Logger: quietLogger}

	err := worker.Work(context.Background(), newJob(1, notifications.DelegateAssignment{DelegateWCAID: "2000NADA01", Change: notifications.ChangeAssigned}))
	var cancel *rivertype.JobCancelError
	require.ErrorAs(t, err, &cancel)
}

func TestDelegateAssignmentWorker_SkipsUndeliverable(t *testing.T) {
	worker := &DelegateAssignmentWorker{Lookup: fixtureLookup(), Mailer: &stubMailer{err: email.ErrNoAddress}, Logger: quietLogger}

	err := worker.Work(context.Background(), newJob(1, notifications.DelegateAssignment{DelegateWCAID: "2010ALFA01", Change: notifications.ChangeAssigned}))
	require.NoError(t, err)
}

func TestDelegateAssignmentWorker_RetriesSendFailure(t *testing.T) {
	boom := errors.New("resend unavailable")
	worker := &DelegateAssignmentWorker{Lookup: fixtureLookup(), Mailer: &stubMailer{err: boom}, Logger: quietLogger}

	err := worker.Work(context.Background(), newJob(1, notifications.DelegateAssignment{DelegateWCAID: "2010ALFA01", Change: notifications.ChangeAssigned}))
	require.ErrorIs(t, err, boom)
}

func TestUltimatumWorker_FansOutPerOrganizer(t *testing.T) {
	queue := &stubQueue{}
	worker := &UltimatumWorker{Lookup: fixtureLookup(), Queue: queue, Policy: NewRetryPolicy(8)}
	deadline := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, worker.Work(context.Background(), newJob(42, notifications.Ultimatum{CompetitionID: 1, Deadline: deadline, Message: "Confirma sede"})))

	require.Len(t, queue.params, 2)
	first, ok := queue.params[0].Args.(UltimatumDeliveryArgs)
	require.True(t, ok)
	require.Equal(t, "2019ORGA01", first.OrganizerWCAID)
	require.Equal(t, int64(42), first.UltimatumJobID)
	require.Equal(t, "Confirma sede", first.Message)
	require.Equal(t, QueueNotifications, queue.params[0].InsertOpts.Queue)
}

func TestUltimatumWorker_CancelsDeletedCompetition(t *testing.T) {
	worker := &UltimatumWorker{Lookup: fixtureLookup(), Queue: &stubQueue{}, Policy: NewRetryPolicy(8)}

	err := worker.Work(context.Background(), newJob(1, notifications.Ultimatum{CompetitionID: 99}))
	var cancel *rivertype.JobCancelError
	require.ErrorAs(t, err, &cancel)
}

func TestUltimatumDeliveryWorker(t *testing.T) {
	mailer := &stubMailer{}
	worker := &UltimatumDeliveryWorker{Lookup: fixtureLookup(), Mailer: mailer, Logger: quietLogger}

	require.NoError(t, worker.Work(context.Background(), newJob(7, UltimatumDeliveryArgs{
		CompetitionID: 1, OrganizerWCAID: "2019ORGA02", Message: "Confirma sede",
	})))
	require.Equal(t, []sentMail{{kind: "ultimatum", to: "2019ORGA02", city: "Guadalajara", message: "Confirma sede"}}, mailer.sent)
}

func TestUltimatumDeliveryWorker_TransientLookupError(t *testing.T) {
	boom := errors.New("connection reset")
	worker := &UltimatumDeliveryWorker{Lookup: stubLookup{err: boom}, Mailer: &stubMailer{}, Logger: quietLogger}

	err := worker.Work(context.Background(), newJob(7, UltimatumDeliveryArgs{CompetitionID: 1, OrganizerWCAID: "2019ORGA02"}))
	require.ErrorIs(t, err, boom)
}

type stubCleaner struct {
	deleted int64
	calls   []time.Time
}

func (s *stubCleaner) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.calls = append(s.calls, now)
	return s.deleted, nil
}

func TestSessionCleanupWorker(t *testing.T) {
	now := time.Date(2027, 1, 1, 3, 0, 0, 0, time.UTC)
	cleaner := &stubCleaner{deleted: 4}
	worker := &SessionCleanupWorker{Sessions: cleaner, Logger: quietLogger, now: func() time.Time { return now }}

	require.NoError(t, worker.Work(context.Background(), newJob(1, SessionCleanupArgs{})))
	require.Equal(t, []time.Time{now}, cleaner.calls)

	err := (&SessionCleanupWorker{}).Work(context.Background(), newJob(2, SessionCleanupArgs{}))
	require.Error(t, err)
}

func TestNewWorkersSetQueue(t *testing.T) {
	workers := NewWorkers(Dependencies{Lookup: fixtureLookup(), Mailer: &stubMailer{}, Policy: NewRetryPolicy(8)})
	queue := &stubQueue{}
	workers.SetQueue(queue)
	require.Same(t, queue, workers.ultimatum.Queue)
}
