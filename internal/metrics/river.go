package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Job outcomes as seen by the worker hook. A failed attempt with attempts
// left is a retry; the last failed attempt is discarded.
const (
	JobSucceeded = "success"
	JobRetrying  = "retry"
	JobDiscarded = "discarded"
)

var (
	JobsEnqueued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Background jobs enqueued by kind",
		},
		[]string{"kind"},
	)

	JobsRunning = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Background jobs currently executing by kind",
		},
		[]string{"kind"},
	)

	JobAttemptDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_attempt_duration_seconds",
			Help:      "Duration of a single job attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	JobPickupLag = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_pickup_lag_seconds",
			Help:      "Time between a job becoming available and a worker starting it",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"kind"},
	)

	JobAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_attempts_total",
			Help:      "Finished job attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// JobHook feeds the job metrics from River's insert and work hooks. Attempt
// timing comes from the job row, so the hook keeps no state.
type JobHook struct {
	river.HookDefaults
	now func() time.Time
}

func NewJobHook() *JobHook {
	return &JobHook{now: time.Now}
}

func (h *JobHook) InsertBegin(_ context.Context, params *rivertype.JobInsertParams) error {
	JobsEnqueued.WithLabelValues(params.Kind).Inc()
	return nil
}

func (h *JobHook) WorkBegin(_ context.Context, job *rivertype.JobRow) error {
	JobsRunning.WithLabelValues(job.Kind).Inc()
	if job.AttemptedAt != nil && !job.ScheduledAt.IsZero() {
		lag := job.AttemptedAt.Sub(job.ScheduledAt)
		if lag < 0 {
			lag = 0
		}
		JobPickupLag.WithLabelValues(job.Kind).Observe(lag.Seconds())
	}
	return nil
}

func (h *JobHook) WorkEnd(_ context.Context, job *rivertype.JobRow, err error) error {
	JobsRunning.WithLabelValues(job.Kind).Dec()
	if job.AttemptedAt != nil {
		JobAttemptDuration.WithLabelValues(job.Kind).Observe(h.now().Sub(*job.AttemptedAt).Seconds())
	}
	JobAttempts.WithLabelValues(job.Kind, attemptOutcome(job, err)).Inc()
	return nil
}

func attemptOutcome(job *rivertype.JobRow, err error) string {
	switch {
	case err == nil:
		return JobSucceeded
	case job.Attempt >= job.MaxAttempts:
		return JobDiscarded
	default:
		return JobRetrying
	}
}
