// Package publisher stores exported conversations in PostgreSQL, then
// invalidates cached statistics and announces the new conversations on Kafka
// so the labeller can pick them up.
package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lib/pq"
	"github.com/umbusk1/bibliofep/internal/ingestion"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/kafka"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/postgres"
)

const duplicateMessage = "Este archivo ya fue procesado anteriormente"

// CacheInvalidator drops cached statistics after new data lands.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Publisher coordinates the ingest transaction and its side effects.
type Publisher struct {
	db       *postgres.Client
	producer kafka.Publisher
	cache    CacheInvalidator
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Publisher. cache and m may be nil.
func New(db *postgres.Client, producer kafka.Publisher, cache CacheInvalidator, m *metrics.Metrics) *Publisher {
	if producer == nil {
		producer = kafka.NopPublisher{}
	}
	return &Publisher{
		db:       db,
		producer: producer,
		cache:    cache,
		metrics:  m,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Ingest writes the export in a single transaction. An export whose filename
// was already processed is rejected with a 409 carrying the filename.
func (p *Publisher) Ingest(ctx context.Context, export *ingestion.Export) (*ingestion.UploadResult, error) {
	filename := export.Filename()

	processed, err := p.alreadyProcessed(ctx, filename)
	if err != nil {
		p.countUpload("error")
		return nil, err
	}
	if processed {
		p.countUpload("duplicate")
		return nil, duplicateError(filename)
	}

	result := &ingestion.UploadResult{Filename: filename, Period: export.Period()}
	ids := make([]string, 0, len(export.Conversations))

	err = p.db.InTx(ctx, func(tx *sql.Tx) error {
		convStmt, err := tx.PrepareContext(ctx, insertConversation)
		if err != nil {
			return fmt.Errorf("preparing conversation insert: %w", err)
		}
		defer convStmt.Close()
		msgStmt, err := tx.PrepareContext(ctx, insertMessage)
		if err != nil {
			return fmt.Errorf("preparing message insert: %w", err)
		}
		defer msgStmt.Close()

		for _, c := range export.Conversations {
			createdAt, err := ingestion.ParseTime(c.CreatedAt)
			if err != nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
					"conversation %s: invalid created_at", c.ID)
			}
			country := c.Country
			if country == "" {
				country = "Unknown"
			}
			if _, err := convStmt.ExecContext(ctx,
				c.ID, nullString(c.ChatbotID), nullString(export.ChatbotName), country, createdAt,
				nullString(c.Title), len(c.Messages), nullFloat(c.MinScore), nullString(c.Source),
				nullString(c.UserID), nullString(c.AnonymousID), int(createdAt.Month()), createdAt.Year(),
				nullString(c.Sentiment), nullTime(c.LastMessageAt),
			); err != nil {
				return fmt.Errorf("inserting conversation %s: %w", c.ID, err)
			}
			result.ConversationsProcessed++
			ids = append(ids, c.ID)

			for _, m := range c.Messages {
				if m.ID == "" {
					continue
				}
				msgType := m.Type
				if msgType == "" {
					msgType = "text"
				}
				if _, err := msgStmt.ExecContext(ctx,
					m.ID, c.ID, m.Role, m.Content, nullScore(m.Score),
					nullTime(m.CreatedAt), nullString(m.StepID), msgType,
				); err != nil {
					return fmt.Errorf("inserting message %s: %w", m.ID, err)
				}
				result.MessagesProcessed++
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processed_files (filename, start_date, end_date, total_conversations)
			 VALUES ($1, $2, $3, $4)`,
			filename, export.StartDateStr, export.EndDateStr, result.ConversationsProcessed,
		); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return duplicateError(filename)
			}
			return fmt.Errorf("recording processed file: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyProcessed) {
			p.countUpload("duplicate")
		} else {
			p.countUpload("error")
		}
		return nil, err
	}

	p.countUpload("ok")
	if p.metrics != nil {
		p.metrics.ConversationsIngested.Add(float64(result.ConversationsProcessed))
		p.metrics.MessagesIngested.Add(float64(result.MessagesProcessed))
	}
	p.logger.Info("export ingested",
		"filename", filename,
		"conversations", result.ConversationsProcessed,
		"messages", result.MessagesProcessed,
	)

	p.afterCommit(ctx, filename, ids)
	return result, nil
}

// afterCommit runs the best-effort side effects. Failures are logged; the
// upload itself has already succeeded.
func (p *Publisher) afterCommit(ctx context.Context, filename string, ids []string) {
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx); err != nil {
			p.logger.Warn("failed to invalidate stats cache", "error", err)
		}
	}
	if len(ids) == 0 {
		return
	}
	event := kafka.Event{
		Key: filename,
		Value: ingestion.ConversationsIngested{
			Filename:        filename,
			ConversationIDs: ids,
			IngestedAt:      time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish ingest event, conversations stay unlabelled",
			"filename", filename,
			"conversations", len(ids),
			"error", err,
		)
	}
}

func (p *Publisher) alreadyProcessed(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_files WHERE filename = $1)`, filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking processed files: %w", err)
	}
	return exists, nil
}

func (p *Publisher) countUpload(outcome string) {
	if p.metrics != nil {
		p.metrics.UploadsTotal.WithLabelValues(outcome).Inc()
	}
}

func duplicateError(filename string) error {
	return apperrors.New(apperrors.ErrAlreadyProcessed, http.StatusConflict, duplicateMessage).
		With("filename", filename)
}

const insertConversation = `
INSERT INTO conversations (
	id, chatbot_id, chatbot_name, country, created_at,
	title, message_count, min_score, source, user_id_chat,
	anonymous_id, month, year, sentiment, last_message_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO NOTHING`

const insertMessage = `
INSERT INTO messages (
	id, conversation_id, role, content, score,
	created_at, step_id, message_type
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullScore stores a zero score as NULL, matching how exports mark unscored
// messages.
func nullScore(f *float64) sql.NullFloat64 {
	if f == nil || *f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(s string) sql.NullTime {
	if s == "" {
		return sql.NullTime{}
	}
	t, err := ingestion.ParseTime(s)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
