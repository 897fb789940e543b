package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/postgres"
)

const (
	summaryColumns = `id, title, period_start, period_end, month, year, published_by, published_at, is_latest`
	fullColumns    = summaryColumns + `, stats_data`
)

var errReportNotFound = apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "Reporte no encontrado")

// Store persists published reports. Exactly one report is flagged latest
// whenever any exist.
type Store struct {
	db      *postgres.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStore creates a Store. m may be nil.
func NewStore(db *postgres.Client, m *metrics.Metrics) *Store {
	return &Store{
		db:      db,
		metrics: m,
		logger:  slog.Default().With("component", "reports"),
	}
}

// Publish stores a new report as the latest one and clears the flag on every
// other report in the same transaction.
func (s *Store) Publish(ctx context.Context, publishedBy int64, req PublishRequest) (*PublishResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	period, err := ResolvePeriod(req.Filters, req.StatsData)
	if err != nil {
		return nil, err
	}

	var by sql.NullInt64
	if publishedBy > 0 {
		by = sql.NullInt64{Int64: publishedBy, Valid: true}
	}

	result := &PublishResult{Success: true, Message: "Reporte publicado exitosamente"}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE published_reports SET is_latest = FALSE WHERE is_latest`); err != nil {
			return fmt.Errorf("clearing latest report: %w", err)
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO published_reports
			   (title, period_start, period_end, month, year, stats_data, published_by, is_latest)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			 RETURNING id, published_at`,
			req.Title, period.Start, period.End, period.Month, period.Year,
			[]byte(req.StatsData), by,
		).Scan(&result.ReportID, &result.PublishedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("publishing report: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ReportsPublishedTotal.Inc()
	}
	s.logger.Info("report published", "report_id", result.ReportID, "title", req.Title)
	return result, nil
}

// List returns the latest report with its stats and the newest reports
// without them.
func (s *Store) List(ctx context.Context) (*Listing, error) {
	listing := &Listing{All: make([]*Report, 0)}

	latest, err := scanReport(s.db.DB.QueryRowContext(ctx,
		`SELECT `+fullColumns+` FROM published_reports WHERE is_latest LIMIT 1`), true)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("loading latest report: %w", err)
	default:
		listing.Latest = latest
	}

	rows, err := s.db.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM published_reports ORDER BY published_at DESC, id DESC LIMIT %d`, summaryColumns, ListLimit))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanReport(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		listing.All = append(listing.All, r)
	}
	return listing, rows.Err()
}

// Get returns a single report with its stats.
func (s *Store) Get(ctx context.Context, id int64) (*Report, error) {
	r, err := scanReport(s.db.DB.QueryRowContext(ctx,
		`SELECT `+fullColumns+` FROM published_reports WHERE id = $1`, id), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading report %d: %w", id, err)
	}
	return r, nil
}

// Delete removes a report. When the latest report is removed the newest
// remaining one takes its place.
func (s *Store) Delete(ctx context.Context, id int64) (*DeleteResult, error) {
	result := &DeleteResult{Success: true, Message: "Reporte eliminado exitosamente", ReportID: id}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var wasLatest bool
		err := tx.QueryRowContext(ctx,
			`DELETE FROM published_reports WHERE id = $1 RETURNING title, is_latest`, id,
		).Scan(&result.ReportTitle, &wasLatest)
		if errors.Is(err, sql.ErrNoRows) {
			return errReportNotFound
		}
		if err != nil {
			return fmt.Errorf("deleting report %d: %w", id, err)
		}
		if !wasLatest {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE published_reports SET is_latest = TRUE
			 WHERE id = (SELECT id FROM published_reports ORDER BY published_at DESC, id DESC LIMIT 1)`,
		); err != nil {
			return fmt.Errorf("promoting latest report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner, withStats bool) (*Report, error) {
	var (
		r           Report
		start, end  sql.NullTime
		month, year sql.NullInt32
		by          sql.NullInt64
		statsData   []byte
	)
	dest := []any{&r.ID, &r.Title, &start, &end, &month, &year, &by, &r.PublishedAt, &r.IsLatest}
	if withStats {
		dest = append(dest, &statsData)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	r.PeriodStart = nullTime(start)
	r.PeriodEnd = nullTime(end)
	if month.Valid {
		m := int(month.Int32)
		r.Month = &m
	}
	if year.Valid {
		y := int(year.Int32)
		r.Year = &y
	}
	if by.Valid {
		r.PublishedBy = &by.Int64
	}
	if withStats {
		r.StatsData = statsData
	}
	return &r, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
