package competitions

import (
	"slices"

	"github.com/ams-cubing/public-calendar/internal/domain/dates"
)

// SelectDelegate returns the first candidate with nothing overlapping the
// requested window, or nil when every candidate is busy. Candidates are
// expected in the repository's deterministic order.
func SelectDelegate(candidates []Candidate, window dates.Range) *Candidate {
	for i := range candidates {
		if isFree(candidates[i], window) {
			return &candidates[i]
		}
	}
	return nil
}

func isFree(c Candidate, window dates.Range) bool {
	for _, busy := range c.Busy {
		if busy.Overlaps(window) {
			return false
		}
	}
	return true
}

// DiffDelegates reports which WCA ids were added and removed between two
// delegate lists. Order follows the input lists.
func DiffDelegates(previous, next []string) (added, removed []string) {
	for _, id := range next {
		if !slices.Contains(previous, id) && !slices.Contains(added, id) {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if !slices.Contains(next, id) && !slices.Contains(removed, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func personIDs(people []Person) []string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.WCAID)
	}
	return out
}

func assignments(ids []string, primary string) []Assignment {
	out := make([]Assignment, 0, len(ids))
	for _, id := range ids {
		out = append(out, Assignment{WCAID: id, IsPrimary: id == primary})
	}
	return out
}
