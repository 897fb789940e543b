// Package reports publishes dashboard snapshots to the public report page.
package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/umbusk1/bibliofep/internal/ingestion"
	"github.com/umbusk1/bibliofep/internal/stats"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

// ListLimit caps the report history returned by List.
const ListLimit = 50

// Report is a published_reports row. StatsData is omitted from listings.
type Report struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	PeriodStart *time.Time      `json:"period_start"`
	PeriodEnd   *time.Time      `json:"period_end"`
	Month       *int            `json:"month"`
	Year        *int            `json:"year"`
	StatsData   json.RawMessage `json:"stats_data,omitempty"`
	PublishedBy *int64          `json:"published_by"`
	PublishedAt time.Time       `json:"published_at"`
	IsLatest    bool            `json:"is_latest"`
}

// Listing is the public landing payload.
type Listing struct {
	Latest *Report   `json:"latest"`
	All    []*Report `json:"all"`
}

// Filters are the dashboard filters active when the report was published.
// Month and year arrive either as numbers or as strings.
type Filters struct {
	StartDate string  `json:"startDate,omitempty"`
	EndDate   string  `json:"endDate,omitempty"`
	Month     flexInt `json:"month,omitempty"`
	Year      flexInt `json:"year,omitempty"`
}

type PublishRequest struct {
	Title     string          `json:"title"`
	Filters   Filters         `json:"filters"`
	StatsData json.RawMessage `json:"statsData"`
}

type PublishResult struct {
	Success     bool      `json:"success"`
	ReportID    int64     `json:"reportId"`
	PublishedAt time.Time `json:"publishedAt"`
	Message     string    `json:"message"`
}

type DeleteResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ReportID    int64  `json:"reportId"`
	ReportTitle string `json:"reportTitle"`
}

// Period is the time span a report covers. Month and Year are set only for
// month-filtered reports.
type Period struct {
	Start *time.Time
	End   *time.Time
	Month *int
	Year  *int
}

// Validate checks the required publish fields.
func (r *PublishRequest) Validate() error {
	raw := bytes.TrimSpace(r.StatsData)
	if strings.TrimSpace(r.Title) == "" || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "Faltan datos requeridos")
	}
	return nil
}

// ResolvePeriod picks the report period from the month filter, then the date
// range, then the first and last conversation in statsData.general. A
// report whose stats carry no timestamps has an open period.
func ResolvePeriod(f Filters, statsData json.RawMessage) (Period, error) {
	if f.Month != 0 && f.Year != 0 {
		m, y := int(f.Month), int(f.Year)
		if m < 1 || m > 12 || y < 1 {
			return Period{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "month must be between 1 and 12")
		}
		start, end := stats.MonthBounds(y, m)
		return Period{Start: &start, End: &end, Month: &m, Year: &y}, nil
	}

	if f.StartDate != "" && f.EndDate != "" {
		start, err := ingestion.ParseTime(f.StartDate)
		if err != nil {
			return Period{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid startDate %q", f.StartDate)
		}
		end, err := ingestion.ParseTime(f.EndDate)
		if err != nil {
			return Period{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid endDate %q", f.EndDate)
		}
		return Period{Start: &start, End: &end}, nil
	}

	var payload struct {
		General stats.General `json:"general"`
	}
	if err := json.Unmarshal(statsData, &payload); err != nil {
		return Period{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "statsData must be an object")
	}
	return Period{Start: payload.General.FirstConversation, End: payload.General.LastConversation}, nil
}

type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected an integer, got %s", b)
	}
	*n = flexInt(v)
	return nil
}
