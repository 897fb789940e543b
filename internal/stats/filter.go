package stats

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

// Filter restricts statistics to a date range or a calendar month. Both may
// be set; Clause decides which one applies.
type Filter struct {
	Start time.Time
	End   time.Time
	Month int
	Year  int
}

// Precedence picks which half of a Filter applies when both are set.
type Precedence int

const (
	// RangeFirst is used by the stats endpoint.
	RangeFirst Precedence = iota
	// MonthFirst is used by the conversation id lookup.
	MonthFirst
)

var dateLayouts = []string{"2006-01-02", time.RFC3339Nano, "2006-01-02T15:04:05"}

// ParseFilter reads startDate, endDate, month and year from the query.
// Halves given only partially are ignored; values that are present but
// malformed are rejected.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	start, end := strings.TrimSpace(q.Get("startDate")), strings.TrimSpace(q.Get("endDate"))
	if start != "" && end != "" {
		var err error
		if f.Start, err = parseDate(start); err != nil {
			return Filter{}, badFilter("startDate must be a date (YYYY-MM-DD)")
		}
		if f.End, err = parseDate(end); err != nil {
			return Filter{}, badFilter("endDate must be a date (YYYY-MM-DD)")
		}
		if f.End.Before(f.Start) {
			return Filter{}, badFilter("endDate must not be before startDate")
		}
	}

	month, year := strings.TrimSpace(q.Get("month")), strings.TrimSpace(q.Get("year"))
	if month != "" && year != "" {
		m, err := strconv.Atoi(month)
		if err != nil || m < 1 || m > 12 {
			return Filter{}, badFilter("month must be between 1 and 12")
		}
		y, err := strconv.Atoi(year)
		if err != nil || y < 1 {
			return Filter{}, badFilter("year must be a positive integer")
		}
		f.Month, f.Year = m, y
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func badFilter(msg string) error {
	return apperrors.New(apperrors.ErrInvalidInput, 400, msg)
}

func (f Filter) hasRange() bool { return !f.Start.IsZero() && !f.End.IsZero() }
func (f Filter) hasMonth() bool { return f.Month != 0 && f.Year != 0 }

// Effective returns the filter with only the half that applies under p.
func (f Filter) Effective(p Precedence) Filter {
	switch {
	case p == RangeFirst && f.hasRange():
		return Filter{Start: f.Start, End: f.End}
	case f.hasMonth():
		return Filter{Month: f.Month, Year: f.Year}
	case f.hasRange():
		return Filter{Start: f.Start, End: f.End}
	default:
		return Filter{}
	}
}

// Clause renders the applicable condition as " AND ..." against the
// conversations table aliased by alias ("" for none). Placeholders start
// at $1.
func (f Filter) Clause(alias string, p Precedence) (string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	eff := f.Effective(p)
	switch {
	case eff.hasRange():
		return fmt.Sprintf(" AND %s BETWEEN $1 AND $2", col("created_at")), []any{eff.Start, eff.End}
	case eff.hasMonth():
		return fmt.Sprintf(" AND %s = $1 AND %s = $2", col("month"), col("year")), []any{eff.Month, eff.Year}
	default:
		return "", nil
	}
}

// Key is a stable cache key for the filter under RangeFirst.
func (f Filter) Key() string {
	eff := f.Effective(RangeFirst)
	switch {
	case eff.hasRange():
		return "range:" + eff.Start.Format(time.RFC3339) + ":" + eff.End.Format(time.RFC3339)
	case eff.hasMonth():
		return fmt.Sprintf("month:%04d-%02d", eff.Year, eff.Month)
	default:
		return "all"
	}
}

// MonthBounds returns the first instant of the month and the last day of it
// at midnight, the way published reports record their period.
func MonthBounds(year, month int) (time.Time, time.Time) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}
