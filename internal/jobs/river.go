// Package jobs runs the River queue: notification email delivery with
// retries and periodic maintenance.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindUltimatumDelivery = "notify_ultimatum_delivery"
	JobKindSessionCleanup    = "session_cleanup"
)

// QueueNotifications holds email jobs. It runs few workers to stay under the
// provider's request rate.
const QueueNotifications = "notifications"

const (
	DefaultNotificationMaxAttempts = 8
	SessionCleanupMaxAttempts      = 3
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the retry policy. notificationAttempts <= 0 uses
// DefaultNotificationMaxAttempts.
func NewRetryPolicy(notificationAttempts int) *RetryPolicy {
	if notificationAttempts <= 0 {
		notificationAttempts = DefaultNotificationMaxAttempts
	}
	notify := RetryConfig{
		MaxAttempts: notificationAttempts,
		BaseDelay:   30 * time.Second,
		MaxDelay:    1 * time.Hour,
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			notifications.KindDelegateAssignment: notify,
			notifications.KindUltimatum:          notify,
			JobKindUltimatumDelivery:             notify,
			JobKindSessionCleanup: {
				MaxAttempts: SessionCleanupMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    10 * time.Minute,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := max(job.Attempt, 1)
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// InsertOpts returns the insert options for a job kind. Notification kinds
// go to QueueNotifications.
func (p *RetryPolicy) InsertOpts(kind string) *river.InsertOpts {
	opts := &river.InsertOpts{MaxAttempts: p.configFor(kind).MaxAttempts}
	switch kind {
	case notifications.KindDelegateAssignment, notifications.KindUltimatum, JobKindUltimatumDelivery:
		opts.Queue = QueueNotifications
	}
	return opts
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: 5, BaseDelay: 1 * time.Minute, MaxDelay: 1 * time.Hour}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}

// NewClientConfig builds a River client configuration.
func NewClientConfig(workers *river.Workers, policy *RetryPolicy, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 5},
			QueueNotifications: {MaxWorkers: 2},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewDeliveryErrorHandler(logger, nil)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, config *river.Config) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), config)
}

// NewPeriodicJobs schedules expired-session cleanup every interval.
func NewPeriodicJobs(sessionCleanupInterval time.Duration) []*river.PeriodicJob {
	if sessionCleanupInterval <= 0 {
		sessionCleanupInterval = 24 * time.Hour
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(sessionCleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return SessionCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Inserter adds notification jobs inside the caller's transaction, so they
// exist only if the write commits.
type Inserter struct {
	client *river.Client[pgx.Tx]
	policy *RetryPolicy
}

func NewInserter(client *river.Client[pgx.Tx], policy *RetryPolicy) *Inserter {
	return &Inserter{client: client, policy: policy}
}

func (i *Inserter) InsertManyTx(ctx context.Context, tx pgx.Tx, list []notifications.Job) error {
	if len(list) == 0 {
		return nil
	}
	_, err := i.client.InsertManyTx(ctx, tx, insertParams(i.policy, list))
	if err != nil {
		return fmt.Errorf("insert %d jobs: %w", len(list), err)
	}
	return nil
}

func insertParams[T river.JobArgs](policy *RetryPolicy, list []T) []river.InsertManyParams {
	params := make([]river.InsertManyParams, 0, len(list))
	for _, job := range list {
		params = append(params, river.InsertManyParams{Args: job, InsertOpts: policy.InsertOpts(job.Kind())})
	}
	return params
}
