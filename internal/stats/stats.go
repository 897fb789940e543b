// Package stats computes the dashboard aggregates over stored conversations
// and caches them in Redis.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/umbusk1/bibliofep/pkg/postgres"
	"golang.org/x/sync/errgroup"
)

// TopTopics is how many topics the topics panel shows.
const TopTopics = 15

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

type DayAverage struct {
	Date        string  `json:"date"`
	AvgMessages float64 `json:"avg_messages"`
}

type TopicCount struct {
	TopicName string `json:"topic_name"`
	Count     int64  `json:"count"`
}

// General holds the headline numbers. The timestamps are nil when no
// conversation matches.
type General struct {
	TotalConversations         int64      `json:"total_conversations"`
	TotalMessages              int64      `json:"total_messages"`
	AvgMessagesPerConversation float64    `json:"avg_messages_per_conversation"`
	FirstConversation          *time.Time `json:"first_conversation"`
	LastConversation           *time.Time `json:"last_conversation"`
}

// Stats is the payload behind every dashboard chart.
type Stats struct {
	ConversationsByDay []DayCount     `json:"conversationsByDay"`
	Countries          []CountryCount `json:"countries"`
	AvgMessagesByDay   []DayAverage   `json:"avgMessagesByDay"`
	Topics             []TopicCount   `json:"topics"`
	General            General        `json:"general"`
}

// Store runs the aggregate queries against PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "stats-store"),
	}
}

// Compute runs the five aggregate queries concurrently.
func (s *Store) Compute(ctx context.Context, f Filter) (*Stats, error) {
	start := time.Now()
	out := &Stats{
		ConversationsByDay: []DayCount{},
		Countries:          []CountryCount{},
		AvgMessagesByDay:   []DayAverage{},
		Topics:             []TopicCount{},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		where, args := f.Clause("", RangeFirst)
		return s.query(ctx, "conversations by day",
			`SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS date, COUNT(*)
			 FROM conversations WHERE 1=1`+where+`
			 GROUP BY DATE(created_at) ORDER BY DATE(created_at)`,
			args, func(rows *sql.Rows) error {
				var d DayCount
				if err := rows.Scan(&d.Date, &d.Count); err != nil {
					return err
				}
				out.ConversationsByDay = append(out.ConversationsByDay, d)
				return nil
			})
	})
	g.Go(func() error {
		where, args := f.Clause("", RangeFirst)
		return s.query(ctx, "countries",
			`SELECT country, COUNT(*) AS count
			 FROM conversations WHERE 1=1`+where+`
			 GROUP BY country ORDER BY count DESC, country`,
			args, func(rows *sql.Rows) error {
				var c CountryCount
				if err := rows.Scan(&c.Country, &c.Count); err != nil {
					return err
				}
				out.Countries = append(out.Countries, c)
				return nil
			})
	})
	g.Go(func() error {
		where, args := f.Clause("", RangeFirst)
		return s.query(ctx, "average messages by day",
			`SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS date, AVG(message_count)::float8
			 FROM conversations WHERE 1=1`+where+`
			 GROUP BY DATE(created_at) ORDER BY DATE(created_at)`,
			args, func(rows *sql.Rows) error {
				var d DayAverage
				if err := rows.Scan(&d.Date, &d.AvgMessages); err != nil {
					return err
				}
				out.AvgMessagesByDay = append(out.AvgMessagesByDay, d)
				return nil
			})
	})
	g.Go(func() error {
		where, args := f.Clause("c", RangeFirst)
		return s.query(ctx, "topics",
			`SELECT t.topic_name, COUNT(*) AS count
			 FROM topics t JOIN conversations c ON t.conversation_id = c.id
			 WHERE 1=1`+where+fmt.Sprintf(`
			 GROUP BY t.topic_name ORDER BY count DESC, t.topic_name LIMIT %d`, TopTopics),
			args, func(rows *sql.Rows) error {
				var tc TopicCount
				if err := rows.Scan(&tc.TopicName, &tc.Count); err != nil {
					return err
				}
				out.Topics = append(out.Topics, tc)
				return nil
			})
	})
	g.Go(func() error {
		where, args := f.Clause("", RangeFirst)
		var first, last sql.NullTime
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(message_count), 0), COALESCE(AVG(message_count), 0)::float8,
			        MIN(created_at), MAX(created_at)
			 FROM conversations WHERE 1=1`+where,
			args...,
		).Scan(&out.General.TotalConversations, &out.General.TotalMessages,
			&out.General.AvgMessagesPerConversation, &first, &last)
		if err != nil {
			return fmt.Errorf("querying general stats: %w", err)
		}
		if first.Valid {
			out.General.FirstConversation = &first.Time
		}
		if last.Valid {
			out.General.LastConversation = &last.Time
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug("stats computed", "filter", f.Key(), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (s *Store) query(ctx context.Context, name, q string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("querying %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scanning %s: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating %s: %w", name, err)
	}
	return nil
}
