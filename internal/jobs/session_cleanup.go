package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/riverqueue/river"
)

// SessionCleaner deletes sessions that expired before now.
type SessionCleaner interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type SessionCleanupArgs struct{}

func (SessionCleanupArgs) Kind() string { return JobKindSessionCleanup }

type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	Sessions SessionCleaner
	Logger   *slog.Logger
	now      func() time.Time
}

func (w *SessionCleanupWorker) Work(ctx context.Context, job *river.Job[SessionCleanupArgs]) error {
	if w.Sessions == nil {
		return fmt.Errorf("session store not configured")
	}
	now := time.Now
	if w.now != nil {
		now = w.now
	}

	deleted, err := w.Sessions.DeleteExpiredSessions(ctx, now())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	metrics.SessionsDeleted.Add(float64(deleted))
	if deleted > 0 {
		logger(w.Logger).Info("expired sessions deleted", "count", deleted, "attempt", job.Attempt)
	}
	return nil
}
