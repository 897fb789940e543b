package stats

import (
	"context"
	"net/http"

	"github.com/umbusk1/bibliofep/pkg/respond"
)

// Getter serves stats, reporting whether they were cached.
type Getter interface {
	Get(ctx context.Context, f Filter) (*Stats, bool, error)
}

type Handler struct {
	stats Getter
}

func NewHandler(stats Getter) *Handler {
	return &Handler{stats: stats}
}

// Get handles GET /api/v1/stats.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err, "invalid filter")
		return
	}
	st, hit, err := h.stats.Get(r.Context(), f)
	if err != nil {
		respond.Error(w, r, err, "Error al obtener estadísticas")
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	respond.JSON(w, r, http.StatusOK, st)
}
