package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/activity"
	"github.com/ams-cubing/public-calendar/internal/domain/availability"
	"github.com/ams-cubing/public-calendar/internal/domain/calendar"
	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/ams-cubing/public-calendar/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ storage.Repository = (*Repository)(nil)

// JobInserter queues notification jobs inside an open transaction.
type JobInserter interface {
	InsertManyTx(ctx context.Context, tx pgx.Tx, jobs []notifications.Job) error
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// conn is shared by every repository: the pool, the open transaction if any,
// and the job inserter used by Enqueue.
type conn struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
	jobs JobInserter
}

func (c conn) queryer() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.pool
}

// withTx runs fn in a transaction, reusing the current one when nested.
func (c conn) withTx(ctx context.Context, fn func(conn) error) error {
	if c.tx != nil {
		return fn(c)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(conn{pool: c.pool, tx: tx, jobs: c.jobs}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AppendLog writes an audit entry.
func (c conn) AppendLog(ctx context.Context, entry audit.Entry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := c.queryer().Exec(ctx, `
INSERT INTO logs (id, action, target_type, target_id, actor_id, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, entry.ID, entry.Action, entry.TargetType, entry.TargetID, entry.ActorID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// Enqueue inserts notification jobs in the current transaction, or in a new
// one when called outside WithTx. Without an inserter it does nothing.
func (c conn) Enqueue(ctx context.Context, jobs ...notifications.Job) error {
	if c.jobs == nil || len(jobs) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tc conn) error {
		return c.jobs.InsertManyTx(ctx, tc.tx, jobs)
	})
}

// Repository is the PostgreSQL implementation of every domain repository.
type Repository struct {
	conn
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{conn: conn{pool: pool}}, nil
}

// SetJobInserter wires the queue used by Enqueue. It must be called before
// the repository is shared between goroutines.
func (r *Repository) SetJobInserter(jobs JobInserter) {
	r.jobs = jobs
}

func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Competitions() competitions.Repository {
	return &CompetitionRepository{conn: r.conn}
}

func (r *Repository) Availability() availability.Repository {
	return &AvailabilityRepository{conn: r.conn}
}

func (r *Repository) Calendar() calendar.Repository {
	return &CalendarRepository{conn: r.conn}
}

func (r *Repository) Regions() regions.Repository {
	return &RegionRepository{conn: r.conn}
}

func (r *Repository) Users() users.Repository {
	return &UserRepository{conn: r.conn}
}

func (r *Repository) Activity() activity.Repository {
	return &ActivityRepository{conn: r.conn}
}

func (r *Repository) Sessions() auth.SessionStore {
	return &SessionRepository{conn: r.conn}
}

// SessionCleanup exposes the expired-session sweep used by the cleanup job.
func (r *Repository) SessionCleanup() *SessionRepository {
	return &SessionRepository{conn: r.conn}
}

func (r *Repository) Notifications() *NotificationRepository {
	return &NotificationRepository{conn: r.conn}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
