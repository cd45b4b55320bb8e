package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/competitions"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/ams-cubing/public-calendar/internal/email"
	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/ams-cubing/public-calendar/internal/telemetry"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/ams-cubing/public-calendar/internal/jobs"

// Lookup resolves the people and competitions named by job payloads.
type Lookup interface {
	Recipient(ctx context.Context, wcaID string) (*notifications.Recipient, error)
	CompetitionSummary(ctx context.Context, id int64) (*notifications.CompetitionSummary, error)
}

// Mailer sends the notification emails.
type Mailer interface {
	SendDelegateAssigned(ctx context.Context, to notifications.Recipient, comp email.Assignment) error
	SendDelegateRemoved(ctx context.Context, to notifications.Recipient, comp email.Assignment) error
	SendUltimatum(ctx context.Context, to notifications.Recipient, comp notifications.CompetitionSummary, deadline time.Time, message string) error
}

// Queue inserts follow-up jobs outside a transaction.
type Queue interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// DelegateAssignmentWorker emails a delegate about an assignment change.
type DelegateAssignmentWorker struct {
	river.WorkerDefaults[notifications.DelegateAssignment]
	Lookup Lookup
	Mailer Mailer
	Logger *slog.Logger
}

func (w *DelegateAssignmentWorker) Work(ctx context.Context, job *river.Job[notifications.DelegateAssignment]) error {
	args := job.Args
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, job.Kind)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("competition_id", args.CompetitionID),
		attribute.String("delegate", args.DelegateWCAID),
		attribute.String("change", string(args.Change)),
	)

	to, err := w.Lookup.Recipient(ctx, args.DelegateWCAID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return river.JobCancel(err)
		}
		return err
	}

	comp := email.Assignment{City: args.City, StartDate: args.StartDate, EndDate: args.EndDate}
	switch args.Change {
	case notifications.ChangeAssigned:
		err = w.Mailer.SendDelegateAssigned(ctx, *to, comp)
	case notifications.ChangeRemoved:
		err = w.Mailer.SendDelegateRemoved(ctx, *to, comp)
	default:
		return river.JobCancel(fmt.Errorf("unknown assignment change %q", args.Change))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return recordDelivery(logger(w.Logger), job.Kind, to.WCAID, err)
}

// UltimatumWorker fans an ultimatum out to one delivery job per organizer,
// so a failed delivery is retried without emailing the others again.
type UltimatumWorker struct {
	river.WorkerDefaults[notifications.Ultimatum]
	Lookup Lookup
	Queue  Queue
	Policy *RetryPolicy
}

func (w *UltimatumWorker) Work(ctx context.Context, job *river.Job[notifications.Ultimatum]) error {
	if w.Queue == nil {
		return fmt.Errorf("ultimatum queue not configured")
	}
	comp, err := w.Lookup.CompetitionSummary(ctx, job.Args.CompetitionID)
	if err != nil {
		if errors.Is(err, competitions.ErrNotFound) {
			return river.JobCancel(err)
		}
		return err
	}

	deliveries := make([]UltimatumDeliveryArgs, 0, len(comp.Organizers))
	for _, organizer := range comp.Organizers {
		deliveries = append(deliveries, UltimatumDeliveryArgs{
			CompetitionID:  comp.ID,
			OrganizerWCAID: organizer.WCAID,
			Deadline:       job.Args.Deadline,
			Message:        job.Args.Message,
			// Scopes uniqueness to this ultimatum job.
			UltimatumJobID: job.ID,
		})
	}
	if len(deliveries) == 0 {
		return nil
	}
	if _, err := w.Queue.InsertMany(ctx, insertParams(w.Policy, deliveries)); err != nil {
		return fmt.Errorf("enqueue ultimatum deliveries: %w", err)
	}
	return nil
}

// UltimatumDeliveryArgs emails one organizer about an ultimatum.
type UltimatumDeliveryArgs struct {
	CompetitionID  int64     `json:"competition_id" river:"unique"`
	OrganizerWCAID string    `json:"organizer_wca_id" river:"unique"`
	Deadline       time.Time `json:"deadline"`
	Message        string    `json:"message,omitempty"`
	UltimatumJobID int64     `json:"ultimatum_job_id" river:"unique"`
}

func (UltimatumDeliveryArgs) Kind() string { return JobKindUltimatumDelivery }

// InsertOpts marks deliveries unique by the tagged fields.
func (UltimatumDeliveryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

type UltimatumDeliveryWorker struct {
	river.WorkerDefaults[UltimatumDeliveryArgs]
	Lookup Lookup
	Mailer Mailer
	Logger *slog.Logger
}

func (w *UltimatumDeliveryWorker) Work(ctx context.Context, job *river.Job[UltimatumDeliveryArgs]) error {
	args := job.Args
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, job.Kind)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("competition_id", args.CompetitionID),
		attribute.String("organizer", args.OrganizerWCAID),
	)

	comp, err := w.Lookup.CompetitionSummary(ctx, args.CompetitionID)
	if err != nil {
		if errors.Is(err, competitions.ErrNotFound) {
			return river.JobCancel(err)
		}
		return err
	}
	to, err := w.Lookup.Recipient(ctx, args.OrganizerWCAID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return river.JobCancel(err)
		}
		return err
	}

	err = w.Mailer.SendUltimatum(ctx, *to, *comp, args.Deadline, args.Message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return recordDelivery(logger(w.Logger), job.Kind, to.WCAID, err)
}

// recordDelivery counts the delivery result. Undeliverable recipients are
// not an error.
func recordDelivery(log *slog.Logger, kind, wcaID string, err error) error {
	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues(kind, metrics.NotificationSent).Inc()
		return nil
	case errors.Is(err, email.ErrNoAddress):
		metrics.Notifications.WithLabelValues(kind, metrics.NotificationSkipped).Inc()
		log.Info("skipping notification without deliverable address", "kind", kind, "wca_id", wcaID)
		return nil
	default:
		metrics.Notifications.WithLabelValues(kind, metrics.NotificationFailed).Inc()
		return err
	}
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Dependencies wires the workers.
type Dependencies struct {
	Lookup   Lookup
	Mailer   Mailer
	Sessions SessionCleaner
	Policy   *RetryPolicy
	Logger   *slog.Logger
}

// Workers holds the registered workers. SetQueue must be called once the
// River client exists, before the client starts.
type Workers struct {
	*river.Workers
	ultimatum *UltimatumWorker
}

func NewWorkers(deps Dependencies) *Workers {
	workers := river.NewWorkers()
	ultimatum := &UltimatumWorker{Lookup: deps.Lookup, Policy: deps.Policy}
	river.AddWorker(workers, &DelegateAssignmentWorker{Lookup: deps.Lookup, Mailer: deps.Mailer, Logger: deps.Logger})
	river.AddWorker(workers, ultimatum)
	river.AddWorker(workers, &UltimatumDeliveryWorker{Lookup: deps.Lookup, Mailer: deps.Mailer, Logger: deps.Logger})
	river.AddWorker(workers, &SessionCleanupWorker{Sessions: deps.Sessions, Logger: deps.Logger})
	return &Workers{Workers: workers, ultimatum: ultimatum}
}

func (w *Workers) SetQueue(queue Queue) {
	w.ultimatum.Queue = queue
}
