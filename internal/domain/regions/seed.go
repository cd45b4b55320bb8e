package regions

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by `server seed`.
//
//	regions:
//	  - name: Occidente
//	    color: "#f59e0b"
//	    states:
//	      - {id: JAL, name: Jalisco}
//	holidays:
//	  - {date: 2027-09-16, name: Día de la Independencia}
type SeedFile struct {
	Regions []struct {
		Name   string `yaml:"name"`
		Color  string `yaml:"color"`
		States []struct {
			ID   string `yaml:"id"`
			Name string `yaml:"name"`
		} `yaml:"states"`
	} `yaml:"regions"`
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// SeedResult counts the rows written by Seed.
type SeedResult struct {
	Regions  int
	States   int
	Holidays int
}

// ParseSeed decodes and checks a seed file.
func ParseSeed(r io.Reader) (*SeedFile, error) {
	var file SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	seen := map[string]bool{}
	for _, region := range file.Regions {
		if strings.TrimSpace(region.Name) == "" {
			return nil, fmt.Errorf("region without name")
		}
		for _, state := range region.States {
			id := strings.ToUpper(strings.TrimSpace(state.ID))
			if id == "" || len(id) > 4 {
				return nil, fmt.Errorf("region %s: invalid state id %q", region.Name, state.ID)
			}
			if seen[id] {
				return nil, fmt.Errorf("state %s listed twice", id)
			}
			seen[id] = true
		}
	}
	for _, h := range file.Holidays {
		if _, err := dates.Parse(h.Date); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
	}
	return &file, nil
}

// Seed upserts regions, states and holidays in one transaction. Running it
// twice leaves the same rows.
func (s *Service) Seed(ctx context.Context, file *SeedFile) (SeedResult, error) {
	var result SeedResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		result = SeedResult{}
		for _, region := range file.Regions {
			id, err := tx.UpsertRegion(ctx, strings.TrimSpace(region.Name), region.Color)
			if err != nil {
				return fmt.Errorf("upsert region %s: %w", region.Name, err)
			}
			result.Regions++
			for _, state := range region.States {
				st := State{ID: strings.ToUpper(strings.TrimSpace(state.ID)), Name: strings.TrimSpace(state.Name), RegionID: id}
				if err := tx.UpsertState(ctx, st); err != nil {
					return fmt.Errorf("upsert state %s: %w", st.ID, err)
				}
				result.States++
			}
		}
		for _, h := range file.Holidays {
			day, err := dates.Parse(h.Date)
			if err != nil {
				return err
			}
			if err := tx.UpsertHoliday(ctx, Holiday{Date: day, Name: strings.TrimSpace(h.Name)}); err != nil {
				return fmt.Errorf("upsert holiday %s: %w", h.Date, err)
			}
			result.Holidays++
		}
		return nil
	})
	return result, err
}
