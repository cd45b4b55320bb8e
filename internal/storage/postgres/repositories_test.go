package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityRepository(t *testing.T) {
	ctx := context.Background()
	pool, repo := setupPostgres(t)
	insertUser(t, ctx, pool, "2010ALFA01", "Alfa", "delegate", nil)
	avail := repo.Availability()

	n, err := avail.InsertAvailability(ctx, "2010ALFA01", []time.Time{day("2027-05-15"), day("2027-05-16")})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = avail.InsertAvailability(ctx, "2010ALFA01", []time.Time{day("2027-05-16"), day("2027-05-17")})
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "conflicting days are skipped")

	n, err = avail.DeleteAvailability(ctx, "2010ALFA01", []time.Time{day("2027-05-15")})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	days, err := avail.ListAvailability(ctx, "2010ALFA01")
	require.NoError(t, err)
	require.Len(t, days, 2)

	note := "Vacaciones"
	_, err = avail.InsertUnavailability(ctx, "2010ALFA01", dates.Range{Start: day("2027-07-01"), End: day("2027-07-05")}, &note)
	require.NoError(t, err)
	blocked, err := avail.ListUnavailability(ctx, "2010ALFA01")
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Equal(t, "Vacaciones", *blocked[0].Note)
}

func TestCalendarRepository(t *testing.T) {
	ctx := context.Background()
	pool, repo := setupPostgres(t)
	occidente, centro := seedGeography(t, ctx, pool)
	insertUser(t, ctx, pool, "2010ALFA01", "Alfa", "delegate", &occidente)
	insertUser(t, ctx, pool, "2010CENT01", "Cent", "delegate", &centro)
	insertUser(t, ctx, pool, "2010NONE01", "Sin Region", "delegate", nil)

	_, err := pool.Exec(ctx, `INSERT INTO availability (user_wca_id, date) VALUES
		('2010ALFA01', '2027-05-15'), ('2010CENT01', '2027-05-15'), ('2010CENT01', '2027-08-01'), ('2010NONE01', '2027-12-01')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO competitions (city, state_id, start_date, end_date) VALUES
		('Guadalajara', 'JAL', '2027-05-15', '2027-05-16'), ('CDMX', 'CMX', '2027-05-30', '2027-06-01')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO holidays (date, name) VALUES ('2027-05-01', 'Día del Trabajo')`)
	require.NoError(t, err)

	cal := repo.Calendar()
	may := dates.MonthRange(day("2027-05-01"))

	all, err := cal.ListCalendarCompetitions(ctx, nil, may)
	require.NoError(t, err)
	require.Len(t, all, 2, "competitions spilling into the next month are included")

	west, err := cal.ListCalendarCompetitions(ctx, &occidente, may)
	require.NoError(t, err)
	require.Len(t, west, 1)
	require.Equal(t, "Occidente", west[0].RegionName)

	days, err := cal.AvailableDays(ctx, nil, may)
	require.NoError(t, err)
	require.Len(t, days, 1, "distinct days")

	last, err := cal.LastAvailableDay(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, day("2027-08-01"), last.UTC(), "users without region are ignored")

	last, err = cal.LastAvailableDay(ctx, &occidente)
	require.NoError(t, err)
	require.Equal(t, day("2027-05-15"), last.UTC())

	holidays, err := cal.ListHolidays(ctx, may.Start, may.End)
	require.NoError(t, err)
	require.Len(t, holidays, 1)

	regionList, err := cal.ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, regionList, 2)
	require.Equal(t, "Centro", regionList[0].Name)
	require.Len(t, regionList[0].States, 1)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	pool, repo := setupPostgres(t)
	occidente, _ := seedGeography(t, ctx, pool)
	u := repo.Users()

	now := time.Now().UTC().Truncate(time.Second)
	created, err := u.UpsertUser(ctx, users.User{WCAID: "2012ABCD01", Name: "Ana", Email: "ana@example.com", Role: auth.RoleDelegate, LastLogin: &now})
	require.NoError(t, err)
	require.Equal(t, auth.RoleDelegate, created.Role)

	require.NoError(t, u.UpdateUserProfile(ctx, "2012ABCD01", auth.RoleAdmin, &occidente))
	got, err := u.GetUser(ctx, "2012ABCD01")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, got.Role)
	require.Equal(t, "Occidente", *got.RegionName)

	_, err = u.UpsertUser(ctx, users.User{WCAID: "2012ABCD01", Name: "Ana María", Email: "ana@example.com", Role: auth.RoleAdmin, LastLogin: &now})
	require.NoError(t, err)
	got, err = u.GetUser(ctx, "2012ABCD01")
	require.NoError(t, err)
	require.Equal(t, "Ana María", got.Name)
	require.NotNil(t, got.RegionID, "sign-in keeps the region")

	require.NoError(t, u.InsertUser(ctx, users.User{WCAID: "2016LOPE02", Name: "Luis 100%", Email: users.PlaceholderEmail("2016LOPE02"), Role: auth.RoleUser}))
	require.Error(t, u.InsertUser(ctx, users.User{WCAID: "2016LOPE02", Name: "Luis", Email: "other@example.com", Role: auth.RoleUser}))

	found, err := u.SearchUsers(ctx, "lope", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	found, err = u.SearchUsers(ctx, "100%", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	found, err = u.SearchUsers(ctx, "%", 5)
	require.NoError(t, err)
	require.Len(t, found, 1, "wildcards are literal")
	found, err = u.SearchUsers(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, found, 2)

	_, err = u.GetUser(ctx, "2000NADA01")
	require.ErrorIs(t, err, users.ErrUserNotFound)

	ok, err := u.RegionExists(ctx, occidente)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	pool, repo := setupPostgres(t)
	insertUser(t, ctx, pool, "2012ABCD01", "Ana", "delegate", nil)
	store := repo.Sessions()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, auth.Session{TokenHash: "live", UserWCAID: "2012ABCD01", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.CreateSession(ctx, auth.Session{TokenHash: "old", UserWCAID: "2012ABCD01", ExpiresAt: now.Add(-time.Hour)}))

	actor, err := store.ActorForSession(ctx, "live", now)
	require.NoError(t, err)
	require.Equal(t, auth.RoleDelegate, actor.Role)

	_, err = store.ActorForSession(ctx, "old", now)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	removed, err := repo.SessionCleanup().DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	require.NoError(t, store.DeleteSession(ctx, "live"))
	require.ErrorIs(t, store.DeleteSession(ctx, "live"), auth.ErrSessionNotFound)
}

func TestActivityRepository(t *testing.T) {
	ctx := context.Background()
	pool, repo := setupPostgres(t)
	insertUser(t, ctx, pool, "2012ABCD01", "Ana", "delegate", nil)

	base := time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []string{audit.ActionSubmitAvailability, audit.ActionDeleteCompetition} {
		require.NoError(t, repo.conn.AppendLog(ctx, audit.Entry{
			ID: []string{"01J00000000000000000000001", "01J00000000000000000000002"}[i], Action: action,
			TargetType: audit.TargetAvailability, TargetID: "2012ABCD01", ActorID: "2012ABCD01",
			Details: map[string]any{"n": i}, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := repo.Activity().RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, audit.ActionDeleteCompetition, rows[0].Action, "newest first")
	require.Equal(t, "Ana", *rows[0].ActorName)
	require.EqualValues(t, 1, rows[0].Details["n"])
}

func TestRegionRepository_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool, repo := setupPostgres(t)

	file, err := regions.ParseSeed(strings.NewReader(`
regions:
  - name: Norte
    color: "#10b981"
    states:
      - {id: NLE, name: Nuevo León}
      - {id: COA, name: Coahuila}
holidays:
  - {date: "2027-09-16", name: Día de la Independencia}
`))
	require.NoError(t, err)

	svc := regions.NewService(repo.Regions())
	for range 2 {
		result, err := svc.Seed(ctx, file)
		require.NoError(t, err)
		require.Equal(t, 1, result.Regions)
		require.Equal(t, 2, result.States)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM states`).Scan(&count))
	require.Equal(t, 2, count)

	list, err := repo.Regions().ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "#10b981", list[0].MapColor)
	require.Equal(t, "Coahuila", list[0].States[0].Name)
}
