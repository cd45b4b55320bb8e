package regions

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	regions   []Region
	delegates []Delegate
	listErr   error

	upsertedRegions map[string]int
	states          map[string]State
	holidays        map[time.Time]string
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		upsertedRegions: map[string]int{},
		states:          map[string]State{},
		holidays:        map[time.Time]string{},
	}
}

func (s *stubRepo) ListRegions(context.Context) ([]Region, error) { return s.regions, s.listErr }

func (s *stubRepo) ListDelegates(context.Context) ([]Delegate, error) { return s.delegates, nil }

func (s *stubRepo) ListHolidays(context.Context, time.Time, time.Time) ([]Holiday, error) {
	return nil, nil
}

func (s *stubRepo) UpsertRegion(_ context.Context, name, _ string) (int, error) {
	if id, ok := s.upsertedRegions[name]; ok {
		return id, nil
	}
	id := len(s.upsertedRegions) + 1
	s.upsertedRegions[name] = id
	return id, nil
}

func (s *stubRepo) UpsertState(_ context.Context, state State) error {
	s.states[state.ID] = state
	return nil
}

func (s *stubRepo) UpsertHoliday(_ context.Context, h Holiday) error {
	s.holidays[h.Date] = h.Name
	return nil
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, s)
}

const seedYAML = `
regions:
  - name: Occidente
    color: "#f59e0b"
    states:
      - {id: jal, name: Jalisco}
      - {id: COL, name: Colima}
  - name: Centro
    color: "#3b82f6"
    states:
      - {id: CMX, name: Ciudad de México}
holidays:
  - date: 2027-09-16
    name: Día de la Independencia
  - date: "2027-12-25"
    name: Navidad
`

func TestSeed(t *testing.T) {
	file, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	repo := newStubRepo()
	svc := NewService(repo)

	result, err := svc.Seed(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, SeedResult{Regions: 2, States: 3, Holidays: 2}, result)
	require.Equal(t, State{ID: "JAL", Name: "Jalisco", RegionID: 1}, repo.states["JAL"])
	require.Equal(t, 2, repo.states["CMX"].RegionID)
	require.Equal(t, "Navidad", repo.holidays[time.Date(2027, 12, 25, 0, 0, 0, 0, time.UTC)])

	again, err := svc.Seed(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, result, again)
	require.Len(t, repo.upsertedRegions, 2)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := map[string]string{
		"duplicate state": "regions:\n  - name: A\n    states: [{id: JAL, name: J}]\n  - name: B\n    states: [{id: jal, name: J}]\n",
		"bad holiday":     "holidays:\n  - {date: zzz, name: X}\n",
		"unknown field":   "regiones: []\n",
		"unnamed region":  "regions:\n  - color: red\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestDirectory(t *testing.T) {
	repo := newStubRepo()
	repo.regions = []Region{{ID: 1, Name: "Centro", States: []State{{ID: "CMX", Name: "Ciudad de México", RegionID: 1}}}}
	repo.delegates = []Delegate{{WCAID: "2012DELE01", Name: "Diego Delegado", Email: "diego@example.com"}}

	dir, err := NewService(repo).Directory(context.Background())
	require.NoError(t, err)
	require.Len(t, dir.Delegates, 1)
	require.Len(t, dir.Regions, 1)

	repo.listErr = errors.New("boom")
	_, err = NewService(repo).Directory(context.Background())
	require.ErrorContains(t, err, "list regions")
}
