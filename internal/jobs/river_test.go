package jobs

import (
	"testing"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(0)

	tests := []struct {
		kind        string
		maxAttempts int
		baseDelay   time.Duration
		maxDelay    time.Duration
	}{
		{notifications.KindDelegateAssignment, DefaultNotificationMaxAttempts, 30 * time.Second, time.Hour},
		{notifications.KindUltimatum, DefaultNotificationMaxAttempts, 30 * time.Second, time.Hour},
		{JobKindUltimatumDelivery, DefaultNotificationMaxAttempts, 30 * time.Second, time.Hour},
		{JobKindSessionCleanup, SessionCleanupMaxAttempts, time.Minute, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			config, ok := policy.ByKind[tt.kind]
			if !ok {
				t.Fatalf("kind %s not found in ByKind map", tt.kind)
			}
			if config.MaxAttempts != tt.maxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.maxAttempts)
			}
			if config.BaseDelay != tt.baseDelay {
				t.Errorf("BaseDelay = %v, want %v", config.BaseDelay, tt.baseDelay)
			}
			if config.MaxDelay != tt.maxDelay {
				t.Errorf("MaxDelay = %v, want %v", config.MaxDelay, tt.maxDelay)
			}
		})
	}

	if got := NewRetryPolicy(3).ByKind[notifications.KindUltimatum].MaxAttempts; got != 3 {
		t.Errorf("configured notification attempts = %d, want 3", got)
	}
}

func TestRetryPolicy_NextRetryBackoff(t *testing.T) {
	policy := NewRetryPolicy(8)
	attemptedAt := time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 30 * time.Second},
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: time.Minute},
		{attempt: 4, want: 4 * time.Minute},
		{attempt: 20, want: time.Hour},
	}

	for _, tt := range tests {
		job := &rivertype.JobRow{Kind: notifications.KindDelegateAssignment, Attempt: tt.attempt, AttemptedAt: &attemptedAt}
		if got := policy.NextRetry(job).Sub(attemptedAt); got != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_UnknownKindUsesDefault(t *testing.T) {
	policy := NewRetryPolicy(8)
	attemptedAt := time.Now()
	job := &rivertype.JobRow{Kind: "unknown", Attempt: 1, AttemptedAt: &attemptedAt}
	if got := policy.NextRetry(job).Sub(attemptedAt); got != policy.Default.BaseDelay {
		t.Errorf("delay = %v, want %v", got, policy.Default.BaseDelay)
	}
}

func TestRetryPolicy_InsertOpts(t *testing.T) {
	policy := NewRetryPolicy(6)

	opts := policy.InsertOpts(notifications.KindDelegateAssignment)
	if opts.Queue != QueueNotifications || opts.MaxAttempts != 6 {
		t.Errorf("delegate assignment opts = %+v", opts)
	}
	opts = policy.InsertOpts(JobKindSessionCleanup)
	if opts.Queue != "" || opts.MaxAttempts != SessionCleanupMaxAttempts {
		t.Errorf("session cleanup opts = %+v", opts)
	}
}

func TestInsertParams(t *testing.T) {
	policy := NewRetryPolicy(8)
	list := []notifications.Job{
		notifications.DelegateAssignment{CompetitionID: 1, DelegateWCAID: "2010ALFA01", Change: notifications.ChangeAssigned},
		notifications.Ultimatum{CompetitionID: 1},
	}

	params := insertParams(policy, list)
	if len(params) != 2 {
		t.Fatalf("len(params) = %d, want 2", len(params))
	}
	if params[1].Args.Kind() != notifications.KindUltimatum {
		t.Errorf("params[1] kind = %s", params[1].Args.Kind())
	}
	if params[0].InsertOpts.Queue != QueueNotifications {
		t.Errorf("params[0] queue = %q", params[0].InsertOpts.Queue)
	}
}

func TestNewClientConfig(t *testing.T) {
	workers := river.NewWorkers()
	policy := NewRetryPolicy(8)
	config := NewClientConfig(workers, policy, nil, nil, NewPeriodicJobs(time.Hour))

	if config.RetryPolicy != policy {
		t.Error("retry policy not set")
	}
	if config.ErrorHandler != nil {
		t.Error("error handler must only be set with a logger")
	}
	if _, ok := config.Queues[QueueNotifications]; !ok {
		t.Error("notifications queue missing")
	}
	if len(config.PeriodicJobs) != 1 {
		t.Errorf("periodic jobs = %d, want 1", len(config.PeriodicJobs))
	}
}
