// Package dates holds calendar-day helpers shared by scheduling code.
// Days are represented as time.Time values at midnight UTC.
package dates

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	dateparser "github.com/markusmobius/go-dateparser"
)

// Layout is the wire format for calendar days.
const Layout = "2006-01-02"

var (
	ErrEmptyDate     = errors.New("date is required")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvertedRange = errors.New("end date must not be before start date")

	freeFormParser = &dateparser.Parser{}
)

// Range is an inclusive span of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange normalizes both ends to days and rejects inverted ranges.
func NewRange(start, end time.Time) (Range, error) {
	r := Range{Start: Day(start), End: Day(end)}
	if r.End.Before(r.Start) {
		return Range{}, ErrInvertedRange
	}
	return r, nil
}

// Overlaps reports whether the two inclusive ranges share at least one day.
func (r Range) Overlaps(other Range) bool {
	return !r.Start.After(other.End) && !r.End.Before(other.Start)
}

// Contains reports whether day falls inside the range.
func (r Range) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days expands the range into its individual days.
func (r Range) Days() []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	out := make([]time.Time, 0, int(r.End.Sub(r.Start).Hours()/24)+1)
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (r Range) String() string {
	return Format(r.Start) + " - " + Format(r.End)
}

// Day truncates t to the calendar day it names in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// EarliestBookable is the first day that can still be requested given a
// lead time in months: today plus leadMonths, minus one day.
func EarliestBookable(today time.Time, leadMonths int) time.Time {
	return Day(today).AddDate(0, leadMonths, -1)
}

// Format renders a day using Layout.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// Parse accepts ISO days (2027-03-15) and free-form Spanish or English dates
// such as "15 de marzo de 2027".
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}
	if t, err := time.Parse(Layout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return Day(t), nil
	}

	// StrictParsing rejects inputs missing the day, month or year.
	parsed, err := freeFormParser.Parse(&dateparser.Configuration{
		Languages:       []string{"es", "en"},
		DefaultTimezone: time.UTC,
		StrictParsing:   true,
	}, value)
	if err != nil || parsed.Time.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return Day(parsed.Time), nil
}

// ParseMonth parses a YYYY-MM value into the first day of that month.
func ParseMonth(value string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// MonthRange returns the range covering the month that contains day.
func MonthRange(day time.Time) Range {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: first, End: first.AddDate(0, 1, -1)}
}

// Unique sorts days and drops duplicates.
func Unique(days []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		d = Day(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}
