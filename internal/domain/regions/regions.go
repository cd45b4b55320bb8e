// Package regions holds the geographic hierarchy used to match delegates to
// competitions, the public delegate directory and the holiday table.
package regions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrNotFound = errors.New("region not found")

type Region struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	MapColor string  `json:"mapColor"`
	States   []State `json:"states"`
}

type State struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RegionID int    `json:"regionId"`
}

// Delegate is a directory entry.
type Delegate struct {
	WCAID      string  `json:"wcaId"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	AvatarURL  *string `json:"avatarUrl,omitempty"`
	RegionID   *int    `json:"regionId,omitempty"`
	RegionName *string `json:"regionName,omitempty"`
}

type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

type Repository interface {
	ListRegions(ctx context.Context) ([]Region, error)
	ListDelegates(ctx context.Context) ([]Delegate, error)
	ListHolidays(ctx context.Context, from, to time.Time) ([]Holiday, error)
	UpsertRegion(ctx context.Context, name, mapColor string) (int, error)
	UpsertState(ctx context.Context, state State) error
	UpsertHoliday(ctx context.Context, holiday Holiday) error
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// Directory is the public "about" page: delegates and the regions they cover.
type Directory struct {
	Delegates []Delegate `json:"delegates"`
	Regions   []Region   `json:"regions"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Regions lists regions ordered by name, each with its states.
func (s *Service) Regions(ctx context.Context) ([]Region, error) {
	regions, err := s.repo.ListRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}

// Directory loads delegates and regions concurrently.
func (s *Service) Directory(ctx context.Context) (*Directory, error) {
	var dir Directory
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		delegates, err := s.repo.ListDelegates(gctx)
		if err != nil {
			return fmt.Errorf("list delegates: %w", err)
		}
		dir.Delegates = delegates
		return nil
	})
	g.Go(func() error {
		regions, err := s.repo.ListRegions(gctx)
		if err != nil {
			return fmt.Errorf("list regions: %w", err)
		}
		dir.Regions = regions
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &dir, nil
}
