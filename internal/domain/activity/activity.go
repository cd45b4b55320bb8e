// Package activity renders the audit log for the panel.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
)

var ErrForbidden = errors.New("not allowed to view activity")

const (
	DefaultLimit = 100
	MaxLimit     = 500

	labelDeletedCompetition = "Competencia eliminada"
)

// Row is a log entry joined with the actor's name.
type Row struct {
	audit.Entry
	ActorName *string
}

// CompetitionRef identifies a competition referenced by a log entry.
type CompetitionRef struct {
	ID        int64
	Name      *string
	City      string
	StartDate time.Time
	EndDate   time.Time
}

// Item is one rendered activity row.
type Item struct {
	audit.Entry
	ActorName   string `json:"actorName"`
	TargetLabel string `json:"targetLabel"`
}

type Repository interface {
	RecentLogs(ctx context.Context, limit int) ([]Row, error)
	CompetitionRefs(ctx context.Context, ids []int64) (map[int64]CompetitionRef, error)
	UserNames(ctx context.Context, wcaIDs []string) (map[string]string, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Recent returns the newest log entries with readable actor and target names.
func (s *Service) Recent(ctx context.Context, actor auth.Actor, limit int) ([]Item, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := s.repo.RecentLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}

	var compIDs []int64
	var userIDs []string
	for _, r := range rows {
		switch r.TargetType {
		case audit.TargetCompetition:
			if id, err := strconv.ParseInt(r.TargetID, 10, 64); err == nil {
				compIDs = append(compIDs, id)
			}
		case audit.TargetAvailability, audit.TargetUser:
			userIDs = append(userIDs, r.TargetID)
		}
	}

	comps := map[int64]CompetitionRef{}
	if len(compIDs) > 0 {
		if comps, err = s.repo.CompetitionRefs(ctx, compIDs); err != nil {
			return nil, fmt.Errorf("competition refs: %w", err)
		}
	}
	names := map[string]string{}
	if len(userIDs) > 0 {
		if names, err = s.repo.UserNames(ctx, userIDs); err != nil {
			return nil, fmt.Errorf("user names: %w", err)
		}
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		item := Item{Entry: r.Entry, ActorName: r.ActorID}
		if r.ActorName != nil {
			item.ActorName = *r.ActorName
		}
		item.TargetLabel = targetLabel(r.Entry, comps, names)
		items = append(items, item)
	}
	return items, nil
}

func targetLabel(e audit.Entry, comps map[int64]CompetitionRef, names map[string]string) string {
	switch e.TargetType {
	case audit.TargetCompetition:
		id, err := strconv.ParseInt(e.TargetID, 10, 64)
		if err != nil {
			break
		}
		comp, ok := comps[id]
		if !ok {
			return labelDeletedCompetition
		}
		name := "Competencia sin nombre en " + comp.City
		if comp.Name != nil {
			name = *comp.Name
		}
		return fmt.Sprintf("%s (%s)", name, dates.Range{Start: comp.StartDate, End: comp.EndDate})
	case audit.TargetAvailability, audit.TargetUser:
		if name, ok := names[e.TargetID]; ok {
			return name
		}
	}
	return e.TargetType + " / " + e.TargetID
}
