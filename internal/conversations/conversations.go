// Package conversations looks up conversation ids for the topic analysis
// picker.
package conversations

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/umbusk1/bibliofep/internal/stats"
	"github.com/umbusk1/bibliofep/pkg/postgres"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

// MaxIDs caps a single lookup.
const MaxIDs = 200

type Store struct {
	db *postgres.Client
}

func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// ListIDs returns the newest conversation ids matching f, month first. With
// unlabeledOnly set, conversations that already have topics are skipped.
func (s *Store) ListIDs(ctx context.Context, f stats.Filter, unlabeledOnly bool) ([]string, error) {
	where, args := f.Clause("c", stats.MonthFirst)
	if unlabeledOnly {
		where += ` AND NOT EXISTS (SELECT 1 FROM topics t WHERE t.conversation_id = c.id)`
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT c.id FROM conversations c WHERE 1=1`+where+
			fmt.Sprintf(` ORDER BY c.created_at DESC LIMIT %d`, MaxIDs),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Lister is implemented by Store.
type Lister interface {
	ListIDs(ctx context.Context, f stats.Filter, unlabeledOnly bool) ([]string, error)
}

type Handler struct {
	store Lister
}

func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

// ListIDs handles GET /api/v1/conversations/ids.
func (h *Handler) ListIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := stats.ParseFilter(q)
	if err != nil {
		respond.Error(w, r, err, "invalid filter")
		return
	}
	unlabeled, _ := strconv.ParseBool(q.Get("unlabeled"))

	ids, err := h.store.ListIDs(r.Context(), f, unlabeled)
	if err != nil {
		respond.Error(w, r, err, "Error al obtener IDs de conversaciones")
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]any{
		"conversationIds": ids,
		"count":           len(ids),
	})
}
