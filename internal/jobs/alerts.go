package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// GiveUpFunc is called when a notification job will not be retried again.
type GiveUpFunc func(ctx context.Context, failure DeliveryFailure)

// DeliveryFailure identifies the email that was never sent.
type DeliveryFailure struct {
	JobID         int64
	Kind          string
	CompetitionID int64
	RecipientID   string
	Err           error
}

// DeliveryErrorHandler logs failed jobs. Notification jobs that exhaust their
// attempts, or panic, are counted as abandoned and passed to OnGiveUp.
type DeliveryErrorHandler struct {
	Logger   *slog.Logger
	OnGiveUp GiveUpFunc
}

func NewDeliveryErrorHandler(logger *slog.Logger, onGiveUp GiveUpFunc) *DeliveryErrorHandler {
	return &DeliveryErrorHandler{Logger: logger, OnGiveUp: onGiveUp}
}

func (h *DeliveryErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	final := job.Attempt >= job.MaxAttempts
	failure := describeFailure(job, err)

	level, msg := slog.LevelWarn, "job failed, will retry"
	if final {
		level, msg = slog.LevelError, "job failed permanently"
	}
	logger(h.Logger).Log(ctx, level, msg,
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"competition_id", failure.CompetitionID,
		"recipient", failure.RecipientID,
		"error", err,
	)
	if final {
		h.giveUp(ctx, failure)
	}
	return nil
}

func (h *DeliveryErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	failure := describeFailure(job, fmt.Errorf("panic: %v", panicVal))
	logger(h.Logger).Error("job panicked",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempt,
		"competition_id", failure.CompetitionID,
		"error", failure.Err,
		"trace", trace,
	)
	h.giveUp(ctx, failure)
	return nil
}

func (h *DeliveryErrorHandler) giveUp(ctx context.Context, failure DeliveryFailure) {
	if !isNotification(failure.Kind) {
		return
	}
	metrics.Notifications.WithLabelValues(failure.Kind, metrics.NotificationAbandoned).Inc()
	if h.OnGiveUp != nil {
		h.OnGiveUp(ctx, failure)
	}
}

func isNotification(kind string) bool {
	switch kind {
	case notifications.KindDelegateAssignment, notifications.KindUltimatum, JobKindUltimatumDelivery:
		return true
	}
	return false
}

// describeFailure pulls the competition and recipient out of the encoded
// args. Unknown kinds and undecodable args leave them empty.
func describeFailure(job *rivertype.JobRow, err error) DeliveryFailure {
	failure := DeliveryFailure{JobID: job.ID, Kind: job.Kind, Err: err}
	var args struct {
		CompetitionID  int64  `json:"competition_id"`
		DelegateWCAID  string `json:"delegate_wca_id"`
		OrganizerWCAID string `json:"organizer_wca_id"`
	}
	if !isNotification(job.Kind) || json.Unmarshal(job.EncodedArgs, &args) != nil {
		return failure
	}
	failure.CompetitionID = args.CompetitionID
	failure.RecipientID = args.DelegateWCAID
	if failure.RecipientID == "" {
		failure.RecipientID = args.OrganizerWCAID
	}
	return failure
}
