// Package audit records mutating actions. Every entry is stored in the logs
// table, inside the caller's transaction, and echoed to the structured log.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/ids"
	"github.com/rs/zerolog"
)

// Actions written to the log.
const (
	ActionRequestDate          = "request_date"
	ActionCreateCompetition    = "create_competition"
	ActionUpdateCompetition    = "update_competition"
	ActionDeleteCompetition    = "delete_competition"
	ActionSendUltimatum        = "send_ultimatum"
	ActionSubmitAvailability   = "submit_availability"
	ActionDeleteAvailability   = "delete_availability"
	ActionSubmitUnavailability = "submit_unavailability"
	ActionImportUser           = "import_user"
	ActionUpdateUser           = "update_user"
)

// Target types.
const (
	TargetCompetition  = "competition"
	TargetAvailability = "availability"
	TargetUser         = "user"
)

// Entry is a single audit record.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	ActorID    string         `json:"actorId"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Store persists audit entries.
type Store interface {
	AppendLog(ctx context.Context, entry Entry) error
}

// Logger stamps entries and writes them to a Store and to zerolog.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Record assigns an id and timestamp, persists the entry and logs it.
// The store is usually transaction-bound so the entry commits with the change.
func (l *Logger) Record(ctx context.Context, store Store, entry Entry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit entry requires an action")
	}
	if entry.ID == "" {
		id, err := ids.NewULID()
		if err != nil {
			return fmt.Errorf("audit id: %w", err)
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}

	if err := store.AppendLog(ctx, entry); err != nil {
		return fmt.Errorf("append audit log %s: %w", entry.Action, err)
	}

	l.logger.Info().
		Str("audit_id", entry.ID).
		Str("action", entry.Action).
		Str("target_type", entry.TargetType).
		Str("target_id", entry.TargetID).
		Str("actor", entry.ActorID).
		Interface("details", entry.Details).
		Msg("audit")
	return nil
}
