package topics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/umbusk1/bibliofep/pkg/logger"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

const idsMessage = "conversationIds debe ser un array"

// Analyzer is implemented by Labeller.
type Analyzer interface {
	Analyze(ctx context.Context, ids []string) (*Result, error)
}

type Handler struct {
	analyzer Analyzer
}

func NewHandler(analyzer Analyzer) *Handler {
	return &Handler{analyzer: analyzer}
}

// Analyze handles POST /api/v1/topics/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(r)
	if !ok {
		respond.Message(w, r, http.StatusBadRequest, idsMessage)
		return
	}
	logger.FromContext(r.Context()).Info("topic analysis requested", "conversations", len(ids))

	res, err := h.analyzer.Analyze(r.Context(), ids)
	if err != nil {
		respond.Error(w, r, err, "Error al analizar temas")
		return
	}
	respond.JSON(w, r, http.StatusOK, res)
}

// decodeIDs accepts string and numeric ids; anything other than an array is
// rejected.
func decodeIDs(r *http.Request) ([]string, bool) {
	var body struct {
		ConversationIDs json.RawMessage `json:"conversationIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, false
	}
	var raw []any
	dec := json.NewDecoder(bytes.NewReader(body.ConversationIDs))
	dec.UseNumber()
	if len(body.ConversationIDs) == 0 || dec.Decode(&raw) != nil || raw == nil {
		return nil, false
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		switch v := v.(type) {
		case string:
			ids = append(ids, v)
		case json.Number:
			ids = append(ids, v.String())
		default:
			return nil, false
		}
	}
	return ids, true
}
