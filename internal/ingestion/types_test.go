package ingestion

import (
	"testing"
	"time"
)

func TestFilenameAndPeriod(t *testing.T) {
	e := &Export{StartDateStr: "2025-03-01", EndDateStr: "2025-03-31"}
	if got := e.Filename(); got != "2025-03-01_2025-03-31.json" {
		t.Errorf("Filename = %q", got)
	}
	if got := e.Period(); got != "2025-03-01 a 2025-03-31" {
		t.Errorf("Period = %q", got)
	}
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-04T10:20:30Z", time.Date(2025, 3, 4, 10, 20, 30, 0, time.UTC)},
		{"2025-03-04T10:20:30.123Z", time.Date(2025, 3, 4, 10, 20, 30, 123e6, time.UTC)},
		{"2025-03-04T06:20:30-04:00", time.Date(2025, 3, 4, 10, 20, 30, 0, time.UTC)},
		{"2025-03-04 10:20:30", time.Date(2025, 3, 4, 10, 20, 30, 0, time.UTC)},
		{"2025-03-04", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTime(tc.in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}
