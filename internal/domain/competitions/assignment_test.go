package competitions

import (
	"testing"
	"time"

	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(dates.Layout, value)
	require.NoError(t, err)
	return d
}

func span(t *testing.T, start, end string) dates.Range {
	t.Helper()
	return dates.Range{Start: mustDay(t, start), End: mustDay(t, end)}
}

func TestSelectDelegate(t *testing.T) {
	window := span(t, "2027-06-12", "2027-06-13")

	tests := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{
			name:       "no candidates",
			candidates: nil,
			want:       "",
		},
		{
			name: "first free wins",
			candidates: []Candidate{
				{WCAID: "A", Busy: nil},
				{WCAID: "B", Busy: nil},
			},
			want: "A",
		},
		{
			name: "skips unavailability overlapping",
			candidates: []Candidate{
				{WCAID: "A", Busy: []dates.Range{span(t, "2027-06-10", "2027-06-12")}},
				{WCAID: "B"},
			},
			want: "B",
		},
		{
			name: "skips competition covering window",
			candidates: []Candidate{
				{WCAID: "A", Busy: []dates.Range{span(t, "2027-06-01", "2027-06-30")}},
				{WCAID: "B", Busy: []dates.Range{span(t, "2027-06-13", "2027-06-13")}},
				{WCAID: "C", Busy: []dates.Range{span(t, "2027-06-14", "2027-06-15")}},
			},
			want: "C",
		},
		{
			name: "adjacent ranges do not conflict",
			candidates: []Candidate{
				{WCAID: "A", Busy: []dates.Range{span(t, "2027-06-10", "2027-06-11"), span(t, "2027-06-14", "2027-06-14")}},
			},
			want: "A",
		},
		{
			name: "everyone busy",
			candidates: []Candidate{
				{WCAID: "A", Busy: []dates.Range{span(t, "2027-06-13", "2027-06-20")}},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectDelegate(tt.candidates, window)
			if tt.want == "" {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tt.want, got.WCAID)
		})
	}
}

func TestDiffDelegates(t *testing.T) {
	added, removed := DiffDelegates([]string{"A", "B", "C"}, []string{"C", "D", "A", "D"})
	require.Equal(t, []string{"D"}, added)
	require.Equal(t, []string{"B"}, removed)

	added, removed = DiffDelegates(nil, []string{"A"})
	require.Equal(t, []string{"A"}, added)
	require.Empty(t, removed)

	added, removed = DiffDelegates([]string{"A"}, []string{"A"})
	require.Empty(t, added)
	require.Empty(t, removed)
}

func TestStatusLabels(t *testing.T) {
	require.Equal(t, "Reservado", PublicReserved.Label())
	require.Equal(t, "No disponible", PublicUnavailable.Label())
	require.Equal(t, "Buscando sede", InternalLookingForVenue.Label())
	require.False(t, PublicStatus("draft").Valid())
	require.True(t, InternalCancelled.Valid())
	require.Len(t, PublicStatuses(), 6)
	require.Len(t, InternalStatuses(), 7)
}
