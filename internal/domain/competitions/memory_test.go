package competitions

import (
	"context"
	"slices"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
)

type consumeCall struct {
	wcaIDs []string
	window dates.Range
}

// memoryRepo is an in-memory Repository for service tests.
type memoryRepo struct {
	states       map[string]State
	candidates   []Candidate
	users        map[string]string
	competitions map[int64]*Competition
	requestTimes map[string][]time.Time
	nextID       int64

	lockedRegions []int
	consumed      []consumeCall
	logs          []audit.Entry
	jobs          []notifications.Job
	ultimatums    map[int64]time.Time
	transactions  int

	inTx             bool
	lockedRequesters []string
	countsInTx       int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		states:       map[string]State{},
		users:        map[string]string{},
		competitions: map[int64]*Competition{},
		requestTimes: map[string][]time.Time{},
		ultimatums:   map[int64]time.Time{},
	}
}

func (m *memoryRepo) GetState(_ context.Context, id string) (*State, error) {
	s, ok := m.states[id]
	if !ok {
		return nil, ErrStateNotFound
	}
	return &s, nil
}

func (m *memoryRepo) CountRequestsSince(_ context.Context, wcaID string, since time.Time) (int, *time.Time, error) {
	if m.inTx {
		m.countsInTx++
	}
	var count int
	var oldest *time.Time
	for _, at := range m.requestTimes[wcaID] {
		if at.Before(since) {
			continue
		}
		count++
		if oldest == nil || at.Before(*oldest) {
			at := at
			oldest = &at
		}
	}
	return count, oldest, nil
}

func (m *memoryRepo) LockRequester(_ context.Context, wcaID string) error {
	m.lockedRequesters = append(m.lockedRequesters, wcaID)
	return nil
}

func (m *memoryRepo) LockCandidates(_ context.Context, regionID int, _ dates.Range) ([]Candidate, error) {
	m.lockedRegions = append(m.lockedRegions, regionID)
	return slices.Clone(m.candidates), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*Competition, error) {
	c, ok := m.competitions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Delegates = slices.Clone(c.Delegates)
	cp.Organizers = slices.Clone(c.Organizers)
	return &cp, nil
}

func (m *memoryRepo) List(_ context.Context, filters Filters) ([]Competition, error) {
	var out []Competition
	for _, c := range m.competitions {
		if filters.RequestedBy != nil && (c.RequestedBy == nil || *c.RequestedBy != *filters.RequestedBy) {
			continue
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Competition) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (m *memoryRepo) Insert(_ context.Context, r Record) (int64, error) {
	m.nextID++
	m.competitions[m.nextID] = applyRecord(&Competition{ID: m.nextID}, r)
	if r.RequestedBy != nil {
		m.requestTimes[*r.RequestedBy] = append(m.requestTimes[*r.RequestedBy], time.Now())
	}
	return m.nextID, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, r Record) error {
	c, ok := m.competitions[id]
	if !ok {
		return ErrNotFound
	}
	applyRecord(c, r)
	return nil
}

func applyRecord(c *Competition, r Record) *Competition {
	c.Name = r.Name
	c.City = r.City
	c.StateID = r.StateID
	c.RequestedBy = r.RequestedBy
	c.TrelloURL = r.TrelloURL
	c.WCACompetitionURL = r.WCACompetitionURL
	c.Capacity = r.Capacity
	c.StartDate = r.StartDate
	c.EndDate = r.EndDate
	c.StatusPublic = r.StatusPublic
	c.StatusInternal = r.StatusInternal
	c.Notes = r.Notes
	return c
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.competitions[id]; !ok {
		return ErrNotFound
	}
	delete(m.competitions, id)
	return nil
}

func (m *memoryRepo) people(list []Assignment) []Person {
	out := make([]Person, 0, len(list))
	for _, a := range list {
		out = append(out, Person{WCAID: a.WCAID, Name: m.users[a.WCAID], IsPrimary: a.IsPrimary})
	}
	return out
}

func (m *memoryRepo) ReplaceDelegates(_ context.Context, id int64, list []Assignment) error {
	m.competitions[id].Delegates = m.people(list)
	return nil
}

func (m *memoryRepo) ReplaceOrganizers(_ context.Context, id int64, list []Assignment) error {
	m.competitions[id].Organizers = m.people(list)
	return nil
}

func (m *memoryRepo) ConsumeAvailability(_ context.Context, wcaIDs []string, r dates.Range) (int64, error) {
	m.consumed = append(m.consumed, consumeCall{wcaIDs: slices.Clone(wcaIDs), window: r})
	return int64(len(wcaIDs)), nil
}

func (m *memoryRepo) MarkUltimatumSent(_ context.Context, id int64, sentAt, deadline time.Time) error {
	c, ok := m.competitions[id]
	if !ok {
		return ErrNotFound
	}
	c.UltimatumSentAt = &sentAt
	c.UltimatumDeadline = &deadline
	m.ultimatums[id] = deadline
	return nil
}

func (m *memoryRepo) UserNames(_ context.Context, wcaIDs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range wcaIDs {
		if name, ok := m.users[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (m *memoryRepo) AppendLog(_ context.Context, entry audit.Entry) error {
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memoryRepo) Enqueue(_ context.Context, jobs ...notifications.Job) error {
	m.jobs = append(m.jobs, jobs...)
	return nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.transactions++
	m.inTx = true
	defer func() { m.inTx = false }()
	return fn(ctx, m)
}
