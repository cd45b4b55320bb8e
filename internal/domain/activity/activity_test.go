package activity

import (
	"context"
	"testing"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	rows      []Row
	comps     map[int64]CompetitionRef
	names     map[string]string
	gotLimit  int
	compCalls int
}

func (s *stubRepo) RecentLogs(_ context.Context, limit int) ([]Row, error) {
	s.gotLimit = limit
	return s.rows, nil
}

func (s *stubRepo) CompetitionRefs(context.Context, []int64) (map[int64]CompetitionRef, error) {
	s.compCalls++
	return s.comps, nil
}

func (s *stubRepo) UserNames(context.Context, []string) (map[string]string, error) {
	return s.names, nil
}

var viewer = auth.Actor{WCAID: "2012DELE01", Role: auth.RoleDelegate}

func TestRecent_Labels(t *testing.T) {
	name := "Puebla Open 2027"
	actor := "Diego Delegado"
	repo := &stubRepo{
		rows: []Row{
			{Entry: audit.Entry{Action: audit.ActionUpdateCompetition, TargetType: audit.TargetCompetition, TargetID: "1", ActorID: "2012DELE01"}, ActorName: &actor},
			{Entry: audit.Entry{Action: audit.ActionRequestDate, TargetType: audit.TargetCompetition, TargetID: "2", ActorID: "2019ORGA01"}},
			{Entry: audit.Entry{Action: audit.ActionDeleteCompetition, TargetType: audit.TargetCompetition, TargetID: "3", ActorID: "2012DELE01"}},
			{Entry: audit.Entry{Action: audit.ActionSubmitAvailability, TargetType: audit.TargetAvailability, TargetID: "2012DELE01", ActorID: "2012DELE01"}},
			{Entry: audit.Entry{Action: audit.ActionImportUser, TargetType: audit.TargetUser, TargetID: "2099NADA01", ActorID: "2012DELE01"}},
		},
		comps: map[int64]CompetitionRef{
			1: {ID: 1, Name: &name, City: "Puebla", StartDate: time.Date(2027, 8, 7, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2027, 8, 8, 0, 0, 0, 0, time.UTC)},
			2: {ID: 2, City: "Mérida", StartDate: time.Date(2027, 9, 4, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2027, 9, 4, 0, 0, 0, 0, time.UTC)},
		},
		names: map[string]string{"2012DELE01": "Diego Delegado"},
	}

	items, err := NewService(repo).Recent(context.Background(), viewer, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultLimit, repo.gotLimit)
	require.Len(t, items, 5)

	require.Equal(t, "Diego Delegado", items[0].ActorName)
	require.Equal(t, "Puebla Open 2027 (2027-08-07 - 2027-08-08)", items[0].TargetLabel)
	require.Equal(t, "2019ORGA01", items[1].ActorName, "falls back to the id")
	require.Equal(t, "Competencia sin nombre en Mérida (2027-09-04 - 2027-09-04)", items[1].TargetLabel)
	require.Equal(t, "Competencia eliminada", items[2].TargetLabel)
	require.Equal(t, "Diego Delegado", items[3].TargetLabel)
	require.Equal(t, "user / 2099NADA01", items[4].TargetLabel)
}

func TestRecent_Limits(t *testing.T) {
	repo := &stubRepo{}
	_, err := NewService(repo).Recent(context.Background(), viewer, 10_000)
	require.NoError(t, err)
	require.Equal(t, MaxLimit, repo.gotLimit)
	require.Zero(t, repo.compCalls)

	_, err = NewService(repo).Recent(context.Background(), auth.Actor{WCAID: "x", Role: auth.RoleUser}, 10)
	require.ErrorIs(t, err, ErrForbidden)
}
