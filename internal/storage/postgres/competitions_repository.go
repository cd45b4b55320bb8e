package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ competitions.Repository = (*CompetitionRepository)(nil)

type CompetitionRepository struct {
	conn
}

func (r *CompetitionRepository) WithTx(ctx context.Context, fn func(context.Context, competitions.Repository) error) error {
	return r.withTx(ctx, func(c conn) error {
		return fn(ctx, &CompetitionRepository{conn: c})
	})
}

func (r *CompetitionRepository) GetState(ctx context.Context, stateID string) (*competitions.State, error) {
	var state competitions.State
	err := r.queryer().QueryRow(ctx, `SELECT id, name, region_id FROM states WHERE id = $1`, stateID).
		Scan(&state.ID, &state.Name, &state.RegionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, competitions.ErrStateNotFound
		}
		return nil, fmt.Errorf("get state: %w", err)
	}
	return &state, nil
}

func (r *CompetitionRepository) CountRequestsSince(ctx context.Context, wcaID string, since time.Time) (int, *time.Time, error) {
	var count int
	var oldest pgtype.Timestamptz
	err := r.queryer().QueryRow(ctx, `
SELECT count(*), min(created_at)
  FROM competitions
 WHERE requested_by = $1
   AND created_at >= $2
`, wcaID, since).Scan(&count, &oldest)
	if err != nil {
		return 0, nil, fmt.Errorf("count requests: %w", err)
	}
	if !oldest.Valid {
		return count, nil, nil
	}
	t := oldest.Time
	return count, &t, nil
}

// LockRequester takes an advisory lock released when the transaction ends.
func (r *CompetitionRepository) LockRequester(ctx context.Context, wcaID string) error {
	if _, err := r.queryer().Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('date-request:' || $1))`, wcaID); err != nil {
		return fmt.Errorf("lock requester: %w", err)
	}
	return nil
}

func (r *CompetitionRepository) LockCandidates(ctx context.Context, regionID int, window dates.Range) ([]competitions.Candidate, error) {
	q := r.queryer()
	rows, err := q.Query(ctx, `
SELECT wca_id, name, email
  FROM users
 WHERE role = 'delegate'
   AND region_id = $1
 ORDER BY name ASC, wca_id ASC
   FOR UPDATE
`, regionID)
	if err != nil {
		return nil, fmt.Errorf("lock delegates: %w", err)
	}
	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (competitions.Candidate, error) {
		var c competitions.Candidate
		err := row.Scan(&c.WCAID, &c.Name, &c.Email)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan delegates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		ids[i] = c.WCAID
		index[c.WCAID] = i
	}

	busy, err := q.Query(ctx, `
SELECT user_wca_id, start_date, end_date
  FROM unavailability
 WHERE user_wca_id = ANY($1)
   AND start_date <= $3
   AND end_date >= $2
UNION ALL
SELECT cd.delegate_wca_id, c.start_date, c.end_date
  FROM competition_delegates cd
  JOIN competitions c ON c.id = cd.competition_id
 WHERE cd.delegate_wca_id = ANY($1)
   AND c.start_date <= $3
   AND c.end_date >= $2
`, ids, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load busy ranges: %w", err)
	}
	defer busy.Close()
	for busy.Next() {
		var id string
		var rng dates.Range
		if err := busy.Scan(&id, &rng.Start, &rng.End); err != nil {
			return nil, fmt.Errorf("scan busy range: %w", err)
		}
		if i, ok := index[id]; ok {
			candidates[i].Busy = append(candidates[i].Busy, rng)
		}
	}
	if err := busy.Err(); err != nil {
		return nil, fmt.Errorf("iterate busy ranges: %w", err)
	}
	return candidates, nil
}

const competitionColumns = `
SELECT c.id, c.name, c.city, c.state_id, s.name, s.region_id, rg.display_name, rg.map_color,
       c.requested_by, c.trello_url, c.wca_competition_url, c.capacity, c.start_date, c.end_date,
       c.status_public, c.status_internal, c.notes, c.ultimatum_sent_at, c.ultimatum_deadline,
       c.created_at, c.updated_at
  FROM competitions c
  JOIN states s ON s.id = c.state_id
  JOIN regions rg ON rg.id = s.region_id
`

func scanCompetition(row pgx.Row) (competitions.Competition, error) {
	var c competitions.Competition
	var deadline pgtype.Date
	err := row.Scan(
		&c.ID, &c.Name, &c.City, &c.StateID, &c.StateName, &c.RegionID, &c.RegionName, &c.RegionColor,
		&c.RequestedBy, &c.TrelloURL, &c.WCACompetitionURL, &c.Capacity, &c.StartDate, &c.EndDate,
		&c.StatusPublic, &c.StatusInternal, &c.Notes, &c.UltimatumSentAt, &deadline,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	if deadline.Valid {
		t := deadline.Time
		c.UltimatumDeadline = &t
	}
	return c, nil
}

func (r *CompetitionRepository) Get(ctx context.Context, id int64) (*competitions.Competition, error) {
	c, err := scanCompetition(r.queryer().QueryRow(ctx, competitionColumns+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, competitions.ErrNotFound
		}
		return nil, fmt.Errorf("get competition: %w", err)
	}
	list := []competitions.Competition{c}
	if err := r.loadPeople(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *CompetitionRepository) List(ctx context.Context, filters competitions.Filters) ([]competitions.Competition, error) {
	var where []string
	var args []any
	if filters.RequestedBy != nil {
		args = append(args, *filters.RequestedBy)
		where = append(where, fmt.Sprintf("c.requested_by = $%d", len(args)))
	}
	if filters.RegionID != nil {
		args = append(args, *filters.RegionID)
		where = append(where, fmt.Sprintf("s.region_id = $%d", len(args)))
	}
	if filters.Window != nil {
		args = append(args, filters.Window.Start, filters.Window.End)
		where = append(where, fmt.Sprintf("c.start_date <= $%d AND c.end_date >= $%d", len(args), len(args)-1))
	}
	query := competitionColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.start_date ASC, c.id ASC"

	rows, err := r.queryer().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (competitions.Competition, error) {
		return scanCompetition(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan competitions: %w", err)
	}
	if err := r.loadPeople(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// loadPeople fills delegates and organizers for the given competitions with
// one query per role.
func (r *CompetitionRepository) loadPeople(ctx context.Context, list []competitions.Competition) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, c := range list {
		ids[i] = c.ID
		index[c.ID] = i
	}

	rows, err := r.queryer().Query(ctx, `
SELECT 'delegate', cd.competition_id, u.wca_id, u.name, u.email, u.avatar_url, cd.is_primary
  FROM competition_delegates cd
  JOIN users u ON u.wca_id = cd.delegate_wca_id
 WHERE cd.competition_id = ANY($1)
UNION ALL
SELECT 'organizer', co.competition_id, u.wca_id, u.name, u.email, u.avatar_url, co.is_primary
  FROM competition_organizers co
  JOIN users u ON u.wca_id = co.organizer_wca_id
 WHERE co.competition_id = ANY($1)
 ORDER BY 1, 2, 7 DESC, 4 ASC
`, ids)
	if err != nil {
		return fmt.Errorf("load competition people: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var competitionID int64
		var p competitions.Person
		if err := rows.Scan(&kind, &competitionID, &p.WCAID, &p.Name, &p.Email, &p.AvatarURL, &p.IsPrimary); err != nil {
			return fmt.Errorf("scan competition person: %w", err)
		}
		i, ok := index[competitionID]
		if !ok {
			continue
		}
		if kind == "delegate" {
			list[i].Delegates = append(list[i].Delegates, p)
		} else {
			list[i].Organizers = append(list[i].Organizers, p)
		}
	}
	return rows.Err()
}

func (r *CompetitionRepository) Insert(ctx context.Context, rec competitions.Record) (int64, error) {
	var id int64
	err := r.queryer().QueryRow(ctx, `
INSERT INTO competitions (name, city, state_id, requested_by, trello_url, wca_competition_url, capacity,
                          start_date, end_date, status_public, status_internal, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id
`, rec.Name, rec.City, rec.StateID, rec.RequestedBy, rec.TrelloURL, rec.WCACompetitionURL, rec.Capacity,
		rec.StartDate, rec.EndDate, string(rec.StatusPublic), string(rec.StatusInternal), rec.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert competition: %w", err)
	}
	return id, nil
}

func (r *CompetitionRepository) Update(ctx context.Context, id int64, rec competitions.Record) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE competitions
   SET name = $2, city = $3, state_id = $4, requested_by = $5, trello_url = $6, wca_competition_url = $7,
       capacity = $8, start_date = $9, end_date = $10, status_public = $11, status_internal = $12,
       notes = $13, updated_at = now()
 WHERE id = $1
`, id, rec.Name, rec.City, rec.StateID, rec.RequestedBy, rec.TrelloURL, rec.WCACompetitionURL,
		rec.Capacity, rec.StartDate, rec.EndDate, string(rec.StatusPublic), string(rec.StatusInternal), rec.Notes)
	if err != nil {
		return fmt.Errorf("update competition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return competitions.ErrNotFound
	}
	return nil
}

func (r *CompetitionRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM competitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete competition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return competitions.ErrNotFound
	}
	return nil
}

func (r *CompetitionRepository) ReplaceDelegates(ctx context.Context, id int64, list []competitions.Assignment) error {
	return r.replaceAssignments(ctx, "competition_delegates", "delegate_wca_id", id, list)
}

func (r *CompetitionRepository) ReplaceOrganizers(ctx context.Context, id int64, list []competitions.Assignment) error {
	return r.replaceAssignments(ctx, "competition_organizers", "organizer_wca_id", id, list)
}

// replaceAssignments rewrites one assignment table. table and column are
// fixed identifiers from this file.
func (r *CompetitionRepository) replaceAssignments(ctx context.Context, table, column string, id int64, list []competitions.Assignment) error {
	q := r.queryer()
	if _, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE competition_id = $1`, id); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(list) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(list))
	for _, a := range list {
		rows = append(rows, []any{id, a.WCAID, a.IsPrimary})
	}
	if _, err := q.CopyFrom(ctx, pgx.Identifier{table}, []string{"competition_id", column, "is_primary"}, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (r *CompetitionRepository) ConsumeAvailability(ctx context.Context, wcaIDs []string, rng dates.Range) (int64, error) {
	if len(wcaIDs) == 0 {
		return 0, nil
	}
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM availability
 WHERE user_wca_id = ANY($1)
   AND date BETWEEN $2 AND $3
`, wcaIDs, rng.Start, rng.End)
	if err != nil {
		return 0, fmt.Errorf("consume availability: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CompetitionRepository) MarkUltimatumSent(ctx context.Context, id int64, sentAt, deadline time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE competitions
   SET ultimatum_sent_at = $2, ultimatum_deadline = $3, updated_at = now()
 WHERE id = $1
`, id, sentAt, deadline)
	if err != nil {
		return fmt.Errorf("mark ultimatum: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return competitions.ErrNotFound
	}
	return nil
}

func (r *CompetitionRepository) UserNames(ctx context.Context, wcaIDs []string) (map[string]string, error) {
	return userNames(ctx, r.queryer(), wcaIDs)
}

func userNames(ctx context.Context, q queryer, wcaIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(wcaIDs))
	if len(wcaIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT wca_id, name FROM users WHERE wca_id = ANY($1)`, wcaIDs)
	if err != nil {
		return nil, fmt.Errorf("user names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan user name: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}
