package datefilter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		expr     string
		valid    bool
		quantity int
		unit     Unit
	}{
		{"2 days ago", true, 2, Day},
		{"1 week ago", true, 1, Week},
		{"1 weeks ago", true, 1, Week},
		{"3 Months Ago", true, 3, Month},
		{"9999 years ago", true, 9999, Year},
		{"5 minutes ago   ", true, 5, Minute},
		{"10000 days ago", false, 0, ""},
		{"0 days ago", false, 0, ""},
		{"-1 days ago", false, 0, ""},
		{"two days ago", false, 0, ""},
		{"2 days", false, 0, ""},
		{" 2 days ago", false, 0, ""},
		{"2 fortnights ago", false, 0, ""},
		{"", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			spec, ok := Parse(tt.expr)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.quantity, spec.Quantity)
			assert.Equal(t, tt.unit, spec.Unit)
			assert.Equal(t, tt.valid, IsValid(tt.expr))
		})
	}
}

func TestSpec_Cutoff(t *testing.T) {
	tests := []struct {
		spec     Spec
		expected time.Time
	}{
		{Spec{30, Minute}, now.Add(-30 * time.Minute)},
		{Spec{2, Hour}, now.Add(-2 * time.Hour)},
		{Spec{3, Day}, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC)},
		{Spec{2, Week}, time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)},
		{Spec{1, Month}, time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)},
		{Spec{1, Year}, time.Date(2023, time.June, 15, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.spec.Quantity, tt.spec.Unit), func(t *testing.T) {
			assert.True(t, tt.expected.Equal(tt.spec.Cutoff(now)))
		})
	}
}

func TestFiltersFor(t *testing.T) {
	tests := []struct {
		expr     string
		expected []string
	}{
		{"1 week ago", []string{"Upload date", "This week"}},
		{"3 weeks ago", []string{"Upload date", "This month"}},
		{"2 hours ago", []string{"Upload date", "Today"}},
		{"13 weeks ago", []string{"Upload date", "This year"}},
		{"36 hours ago", []string{"Upload date", "This week"}},
		{"120 minutes ago", []string{"Upload date", "Today"}},
		{"3 minutes ago", []string{"Upload date", "Last hour"}},
		{"1 hour ago", []string{"Upload date", "Last hour"}},
		{"9 days ago", []string{"Upload date", "This month"}},
		{"4 weeks ago", []string{"Upload date", "This month"}},
		{"1 month ago", []string{"Upload date", "This year"}},
		{"11 months ago", []string{"Upload date", "This year"}},
		{"60 weeks ago", []string{}},
		{"400 days ago", []string{}},
		{"2 years ago", []string{}},
		{"yesterday", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.expected, FiltersFor(tt.expr, now))
		})
	}
}

func TestFiltersFor_SortLabelFirst(t *testing.T) {
	filters := FiltersFor("4 days ago", now)
	require.Len(t, filters, 2)
	assert.Equal(t, LabelSortByUploadDate, filters[0])
}

func TestFiltersFor_Monotonic(t *testing.T) {
	rank := map[string]int{
		LabelLastHour:  0,
		LabelToday:     1,
		LabelThisWeek:  2,
		LabelThisMonth: 3,
		LabelThisYear:  4,
	}
	const noFilter = 5

	previous := -1
	for hours := 1; hours <= 9999; hours++ {
		filters := FiltersFor(fmt.Sprintf("%d hours ago", hours), now)
		current := noFilter
		if len(filters) == 2 {
			current = rank[filters[1]]
		}
		require.GreaterOrEqual(t, current, previous, "%d hours", hours)
		previous = current
	}
	assert.Equal(t, noFilter, previous)
}
