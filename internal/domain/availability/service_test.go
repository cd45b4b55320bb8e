package availability

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	available   map[string][]time.Time
	blocked     []Unavailability
	assignments []Assignment
	logs        []audit.Entry
	failInsert  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{available: map[string][]time.Time{}}
}

func (s *stubRepo) InsertAvailability(_ context.Context, wcaID string, days []time.Time) (int64, error) {
	if s.failInsert != nil {
		return 0, s.failInsert
	}
	var n int64
	for _, d := range days {
		if !slices.Contains(s.available[wcaID], d) {
			s.available[wcaID] = append(s.available[wcaID], d)
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) DeleteAvailability(_ context.Context, wcaID string, days []time.Time) (int64, error) {
	before := len(s.available[wcaID])
	s.available[wcaID] = slices.DeleteFunc(s.available[wcaID], func(d time.Time) bool {
		return slices.Contains(days, d)
	})
	return int64(before - len(s.available[wcaID])), nil
}

func (s *stubRepo) ListAvailability(_ context.Context, wcaID string) ([]time.Time, error) {
	return dates.Unique(s.available[wcaID]), nil
}

func (s *stubRepo) InsertUnavailability(_ context.Context, wcaID string, r dates.Range, note *string) (int64, error) {
	id := int64(len(s.blocked) + 1)
	s.blocked = append(s.blocked, Unavailability{ID: id, WCAID: wcaID, Start: r.Start, End: r.End, Note: note})
	return id, nil
}

func (s *stubRepo) ListUnavailability(_ context.Context, wcaID string) ([]Unavailability, error) {
	var out []Unavailability
	for _, u := range s.blocked {
		if u.WCAID == wcaID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubRepo) DelegateAssignments(context.Context, string) ([]Assignment, error) {
	return s.assignments, nil
}

func (s *stubRepo) AppendLog(_ context.Context, entry audit.Entry) error {
	s.logs = append(s.logs, entry)
	return nil
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, s)
}

const maxNoteLength = 500

var member = auth.Actor{WCAID: "2012DELE01", Name: "Diego Delegado", Role: auth.RoleDelegate}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := dates.Parse(value)
	require.NoError(t, err)
	return d
}

func newTestService(repo *stubRepo) *Service {
	return NewService(repo, audit.NewLogger(zerolog.Nop()), validation.New(), zerolog.Nop())
}

func TestSubmitAvailability(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	n, err := svc.SubmitAvailability(context.Background(), member, []time.Time{
		day(t, "2027-05-16"),
		day(t, "2027-05-15"),
		day(t, "2027-05-15").Add(10 * time.Hour),
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = svc.SubmitAvailability(context.Background(), member, []time.Time{day(t, "2027-05-15")})
	require.NoError(t, err)
	require.Zero(t, n, "existing days are kept without duplicates")

	require.Len(t, repo.logs, 2)
	require.Equal(t, audit.ActionSubmitAvailability, repo.logs[0].Action)
	require.Equal(t, audit.TargetAvailability, repo.logs[0].TargetType)
	require.Equal(t, member.WCAID, repo.logs[0].TargetID)
	require.Equal(t, []string{"2027-05-15", "2027-05-16"}, repo.logs[0].Details["dates"])
}

func TestSubmitAvailability_Empty(t *testing.T) {
	svc := newTestService(newStubRepo())

	_, err := svc.SubmitAvailability(context.Background(), member, nil)
	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "No se seleccionaron fechas", verr.Fields[0].Message)

	_, err = svc.SubmitAvailability(context.Background(), auth.Actor{}, []time.Time{day(t, "2027-05-15")})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubmitAvailability_StorageError(t *testing.T) {
	repo := newStubRepo()
	repo.failInsert = errors.New("connection reset")
	svc := newTestService(repo)

	_, err := svc.SubmitAvailability(context.Background(), member, []time.Time{day(t, "2027-05-15")})
	require.ErrorContains(t, err, "insert availability")
	require.Empty(t, repo.logs)
}

func TestDeleteAvailability(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	_, err := svc.SubmitAvailability(context.Background(), member, []time.Time{day(t, "2027-05-15"), day(t, "2027-05-16")})
	require.NoError(t, err)

	n, err := svc.DeleteAvailability(context.Background(), member, []time.Time{day(t, "2027-05-15"), day(t, "2027-06-01")})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, []time.Time{day(t, "2027-05-16")}, repo.available[member.WCAID])
	require.Equal(t, audit.ActionDeleteAvailability, repo.logs[len(repo.logs)-1].Action)
}

func TestSubmitUnavailability(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	note := "  Viaje <b>familiar</b> "

	id, err := svc.SubmitUnavailability(context.Background(), member, UnavailabilityInput{
		StartDate: day(t, "2027-07-01"),
		EndDate:   day(t, "2027-07-10"),
		Note:      &note,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, id)
	require.Equal(t, "Viaje familiar", *repo.blocked[0].Note)
	require.Equal(t, audit.ActionSubmitUnavailability, repo.logs[0].Action)
	require.Equal(t, "2027-07-10", repo.logs[0].Details["endDate"])
}

func TestSubmitUnavailability_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    UnavailabilityInput
		field string
	}{
		{"inverted", UnavailabilityInput{StartDate: day(t, "2027-07-10"), EndDate: day(t, "2027-07-01")}, "endDate"},
		{"missing start", UnavailabilityInput{EndDate: day(t, "2027-07-01")}, "startDate"},
		{"note too long", UnavailabilityInput{StartDate: day(t, "2027-07-01"), EndDate: day(t, "2027-07-01"), Note: ptr(strings.Repeat("a", maxNoteLength+1))}, "note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			_, err := newTestService(repo).SubmitUnavailability(context.Background(), member, tt.in)
			var verr *validation.Error
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.field, verr.Fields[0].Field)
			require.Empty(t, repo.blocked)
		})
	}
}

func TestSubmitUnavailability_FieldMessages(t *testing.T) {
	repo := newStubRepo()
	_, err := newTestService(repo).SubmitUnavailability(context.Background(), member, UnavailabilityInput{
		Note: ptr(strings.Repeat("ñ", maxNoteLength+1)),
	})

	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []validation.FieldError{
		{Field: "startDate", Message: "startDate es un campo requerido"},
		{Field: "endDate", Message: "endDate es un campo requerido"},
		{Field: "note", Message: "note debe tener un máximo de 500 caracteres"},
	}, verr.Fields)

	_, err = newTestService(repo).SubmitUnavailability(context.Background(), member, UnavailabilityInput{
		StartDate: day(t, "2027-07-01"),
		EndDate:   day(t, "2027-07-01"),
		Note:      ptr(strings.Repeat("ñ", maxNoteLength)),
	})
	require.NoError(t, err)
}

func TestOverview(t *testing.T) {
	repo := newStubRepo()
	repo.available[member.WCAID] = []time.Time{day(t, "2027-05-02"), day(t, "2027-05-01")}
	repo.blocked = []Unavailability{{ID: 1, WCAID: member.WCAID, Start: day(t, "2027-06-01"), End: day(t, "2027-06-03")}}
	repo.assignments = []Assignment{
		{CompetitionID: 1, City: "Puebla", Start: day(t, "2027-08-07"), End: day(t, "2027-08-08")},
		{CompetitionID: 2, City: "Toluca", Start: day(t, "2027-08-08"), End: day(t, "2027-08-09")},
	}

	overview, err := newTestService(repo).Overview(context.Background(), member)
	require.NoError(t, err)
	require.Equal(t, []time.Time{day(t, "2027-05-01"), day(t, "2027-05-02")}, overview.Available)
	require.Len(t, overview.Unavailability, 1)
	require.Equal(t, []time.Time{day(t, "2027-08-07"), day(t, "2027-08-08"), day(t, "2027-08-09")}, overview.BusyDays)
}

func ptr[T any](v T) *T { return &v }

