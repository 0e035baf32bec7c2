// -----------------------------------------------------------------------
// Date Filter - Relative upload dates to platform filter labels
// -----------------------------------------------------------------------

package datefilter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit of a relative date expression
type Unit string

const (
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
	Week   Unit = "week"
	Month  Unit = "month"
	Year   Unit = "year"
)

// Filter menu labels
const (
	LabelSortByUploadDate = "Upload date"
	LabelLastHour         = "Last hour"
	LabelToday            = "Today"
	LabelThisWeek         = "This week"
	LabelThisMonth        = "This month"
	LabelThisYear         = "This year"
)

var expressionPattern = regexp.MustCompile(`(?i)^([1-9][0-9]{0,3}) (minute|hour|day|week|month|year)s? ago *$`)

// Spec is a parsed "<n> <unit>s ago" expression
type Spec struct {
	Quantity int
	Unit     Unit
}

// Parse reads a relative date expression such as "2 days ago"
func Parse(expr string) (Spec, bool) {
	m := expressionPattern.FindStringSubmatch(expr)
	if m == nil {
		return Spec{}, false
	}
	quantity, err := strconv.Atoi(m[1])
	if err != nil {
		return Spec{}, false
	}
	return Spec{Quantity: quantity, Unit: Unit(strings.ToLower(m[2]))}, true
}

// IsValid reports whether expr can be parsed
func IsValid(expr string) bool {
	_, ok := Parse(expr)
	return ok
}

// Cutoff returns the earliest upload time the expression admits.
// Months and years use calendar arithmetic.
func (s Spec) Cutoff(now time.Time) time.Time {
	switch s.Unit {
	case Minute:
		return now.Add(-time.Duration(s.Quantity) * time.Minute)
	case Hour:
		return now.Add(-time.Duration(s.Quantity) * time.Hour)
	case Day:
		return now.AddDate(0, 0, -s.Quantity)
	case Week:
		return now.AddDate(0, 0, -7*s.Quantity)
	case Month:
		return now.AddDate(0, -s.Quantity, 0)
	case Year:
		return now.AddDate(-s.Quantity, 0, 0)
	}
	return now
}

// bucket pairs an elapsed-time measure with the label it selects
type bucket struct {
	amount float64
	label  string
}

// FiltersFor translates expr into the filter labels to click, sort label
// first. The coarsest unit whose elapsed count exceeds one picks the label;
// more than a year has no matching filter and yields an empty list, as does
// an invalid expression.
func FiltersFor(expr string, now time.Time) []string {
	spec, ok := Parse(expr)
	if !ok {
		return []string{}
	}

	elapsed := now.Sub(spec.Cutoff(now))
	hours := elapsed.Hours()
	days := hours / 24
	months := days * 4800 / 146097
	years := months / 12

	if years > 1 {
		return []string{}
	}

	label := LabelLastHour
	for _, b := range []bucket{
		{months, LabelThisYear},
		{days / 7, LabelThisMonth},
		{days, LabelThisWeek},
		{hours, LabelToday},
	} {
		if b.amount > 1 {
			label = b.label
			break
		}
	}

	return []string{LabelSortByUploadDate, label}
}
