package stats

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

func TestParseFilter(t *testing.T) {
	jan1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		query   string
		want    Filter
		wantErr bool
	}{
		{"empty", "", Filter{}, false},
		{"range", "startDate=2025-01-01&endDate=2025-01-31", Filter{Start: jan1, End: jan31}, false},
		{"month", "month=3&year=2024", Filter{Month: 3, Year: 2024}, false},
		{"both", "startDate=2025-01-01&endDate=2025-01-31&month=3&year=2024", Filter{Start: jan1, End: jan31, Month: 3, Year: 2024}, false},
		{"partial range ignored", "startDate=2025-01-01", Filter{}, false},
		{"partial month ignored", "month=4", Filter{}, false},
		{"bad month", "month=13&year=2024", Filter{}, true},
		{"bad year", "month=1&year=-4", Filter{}, true},
		{"bad date", "startDate=ayer&endDate=2025-01-31", Filter{}, true},
		{"reversed", "startDate=2025-02-01&endDate=2025-01-31", Filter{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tc.query)
			got, err := ParseFilter(q)
			if tc.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClausePrecedence(t *testing.T) {
	f := Filter{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Month: 3, Year: 2024,
	}

	sql, args := f.Clause("", RangeFirst)
	if sql != " AND created_at BETWEEN $1 AND $2" || len(args) != 2 {
		t.Errorf("RangeFirst: %q %v", sql, args)
	}

	sql, args = f.Clause("c", MonthFirst)
	if sql != " AND c.month = $1 AND c.year = $2" {
		t.Errorf("MonthFirst: %q", sql)
	}
	if diff := cmp.Diff([]any{3, 2024}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	if sql, args := (Filter{}).Clause("c", RangeFirst); sql != "" || args != nil {
		t.Errorf("empty filter should render nothing, got %q %v", sql, args)
	}
}

func TestKey(t *testing.T) {
	a := Filter{Month: 3, Year: 2024}
	b := Filter{Month: 3, Year: 2024, Start: time.Time{}}
	if a.Key() != b.Key() || a.Key() != "month:2024-03" {
		t.Errorf("unexpected key %q", a.Key())
	}
	if (Filter{}).Key() != "all" {
		t.Error("empty filter key should be all")
	}
	withRange := Filter{Month: 3, Year: 2024,
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}
	if withRange.Key() == a.Key() {
		t.Error("range should win over month in the cache key")
	}
}

func TestMonthBounds(t *testing.T) {
	first, last := MonthBounds(2024, 2)
	if first.Format("2006-01-02") != "2024-02-01" || last.Format("2006-01-02") != "2024-02-29" {
		t.Errorf("got %s..%s", first, last)
	}
}
