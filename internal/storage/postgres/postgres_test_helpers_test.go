package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const testContainerName = "ams-calendar-storage-db"

// domainTables lists every table the scheduling tests write to. River's
// tables and schema_migrations are left alone.
var domainTables = []string{
	"logs",
	"unavailability",
	"availability",
	"competition_organizers",
	"competition_delegates",
	"competitions",
	"sessions",
	"users",
	"holidays",
	"states",
	"regions",
}

// testDB is the single Postgres container shared by the package's tests.
var testDB struct {
	once sync.Once
	err  error
	pool *pgxpool.Pool
}

func TestMain(m *testing.M) {
	code := m.Run()
	if testDB.pool != nil {
		testDB.pool.Close()
	}
	os.Exit(code)
}

// setupPostgres returns a migrated, emptied database and a repository over
// it. Integration tests are skipped with -short.
func setupPostgres(t *testing.T) (*pgxpool.Pool, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	testDB.once.Do(func() {
		testDB.pool, testDB.err = startPostgres()
	})
	require.NoError(t, testDB.err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := testDB.pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(domainTables, ", ")+" RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	repo, err := NewRepository(testDB.pool)
	require.NoError(t, err)
	return testDB.pool, repo
}

func startPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("ams"),
		postgres.WithUsername("ams"),
		postgres.WithPassword("ams_dev"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithReuseByName(testContainerName),
	)
	if err != nil {
		return nil, err
	}
	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	// A reused container may still be starting up.
	migrations := filepath.Join(moduleRoot(), DefaultMigrationsPath)
	for attempt := 0; ; attempt++ {
		err = MigrateUp(dbURL, migrations)
		if err == nil || attempt == 20 || errors.Is(err, ctx.Err()) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	return pgxpool.New(ctx, dbURL)
}

func moduleRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", ".."))
}

// seedGeography creates Occidente (JAL) and Centro (CMX) and returns their
// region ids.
func seedGeography(t *testing.T, ctx context.Context, pool *pgxpool.Pool) (occidente, centro int) {
	t.Helper()
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO regions (display_name, map_color) VALUES ('Occidente', '#f59e0b') RETURNING id`).Scan(&occidente))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO regions (display_name, map_color) VALUES ('Centro', '#3b82f6') RETURNING id`).Scan(&centro))
	_, err := pool.Exec(ctx, `INSERT INTO states (id, name, region_id) VALUES ('JAL', 'Jalisco', $1), ('CMX', 'Ciudad de México', $2)`, occidente, centro)
	require.NoError(t, err)
	return occidente, centro
}

// insertUser adds a user whose email is derived from the WCA id.
func insertUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, wcaID, name, role string, regionID *int) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO users (wca_id, name, email, role, region_id) VALUES ($1, $2, $3, $4, $5)`,
		wcaID, name, strings.ToLower(wcaID)+"@example.com", role, regionID,
	)
	require.NoError(t, err)
}

func day(value string) time.Time {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		panic(err)
	}
	return t
}
