package topics

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/umbusk1/bibliofep/pkg/postgres"
)

// Store reads conversation text and writes topic rows.
type Store struct {
	db *postgres.Client
}

func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// UserMessages returns the user-authored messages of the given conversations
// grouped per conversation, in order of each conversation's first message.
// Conversations without user messages are absent.
func (s *Store) UserMessages(ctx context.Context, ids []string) ([]Conversation, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT m.conversation_id, COALESCE(c.title, ''), COALESCE(m.content, '')
		 FROM messages m
		 JOIN conversations c ON m.conversation_id = c.id
		 WHERE m.conversation_id = ANY($1) AND m.role = 'user'
		 ORDER BY m.created_at, m.id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("querying user messages: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	var out []Conversation
	for rows.Next() {
		var id, title, content string
		if err := rows.Scan(&id, &title, &content); err != nil {
			return nil, fmt.Errorf("scanning user message: %w", err)
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, Conversation{ID: id, Title: title})
		}
		out[i].Messages = append(out[i].Messages, content)
	}
	return out, rows.Err()
}

// Save inserts assignments, skipping ones already stored, and returns how
// many rows were added.
func (s *Store) Save(ctx context.Context, assignments []Assignment) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	saved := 0
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO topics (conversation_id, topic_name, category, relevance_score)
			 VALUES ($1, $2, NULLIF($3, ''), $4)
			 ON CONFLICT DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing topic insert: %w", err)
		}
		defer stmt.Close()
		for _, a := range assignments {
			res, err := stmt.ExecContext(ctx, a.ConversationID, a.Name, a.Category, a.Relevance)
			if err != nil {
				return fmt.Errorf("inserting topic %q for %s: %w", a.Name, a.ConversationID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("reading rows affected: %w", err)
			}
			saved += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}
