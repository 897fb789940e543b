package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/umbusk1/bibliofep/internal/auth/token"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/logger"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

// Repository is implemented by Store.
type Repository interface {
	Publish(ctx context.Context, publishedBy int64, req PublishRequest) (*PublishResult, error)
	List(ctx context.Context) (*Listing, error)
	Get(ctx context.Context, id int64) (*Report, error)
	Delete(ctx context.Context, id int64) (*DeleteResult, error)
}

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Publish handles POST /api/v1/reports.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.FromContext(r.Context())
	if !ok {
		respond.Message(w, r, http.StatusUnauthorized, "No autorizado")
		return
	}
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.repo.Publish(r.Context(), claims.UserID, req)
	if err != nil {
		respond.Error(w, r, err, "Error al publicar reporte")
		return
	}
	respond.JSON(w, r, http.StatusOK, res)
}

// Public handles GET /api/v1/public/reports. With ?id= it returns that
// report, otherwise the latest report and the history.
func (h *Handler) Public(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("id"); raw != "" {
		h.getByID(w, r, raw)
		return
	}
	listing, err := h.repo.List(r.Context())
	if err != nil {
		respond.Error(w, r, err, "Error al obtener reportes")
		return
	}
	respond.JSON(w, r, http.StatusOK, listing)
}

// Get handles GET /api/v1/public/reports/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.getByID(w, r, r.PathValue("id"))
}

func (h *Handler) getByID(w http.ResponseWriter, r *http.Request, raw string) {
	id, err := parseID(raw)
	if err != nil {
		respond.Error(w, r, err, "invalid report id")
		return
	}
	report, err := h.repo.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err, "Error al obtener reportes")
		return
	}
	respond.JSON(w, r, http.StatusOK, report)
}

// Delete handles DELETE /api/v1/reports/{id}. The id may also be given as
// ?id= on DELETE /api/v1/reports.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	if raw == "" {
		respond.Message(w, r, http.StatusBadRequest, "ID de reporte no proporcionado")
		return
	}
	id, err := parseID(raw)
	if err != nil {
		respond.Error(w, r, err, "invalid report id")
		return
	}
	res, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err, "Error al eliminar reporte")
		return
	}
	by := ""
	if claims, ok := token.FromContext(r.Context()); ok {
		by = claims.Email
	}
	logger.FromContext(r.Context()).Info("report deleted", "report_id", id, "title", res.ReportTitle, "by", by)
	respond.JSON(w, r, http.StatusOK, res)
}

// Export handles GET /api/v1/public/reports/{id}/export?format=csv|md.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		respond.Error(w, r, err, "invalid report id")
		return
	}
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respond.Error(w, r, err, "invalid format")
		return
	}
	report, err := h.repo.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err, "Error al exportar reporte")
		return
	}

	var buf bytes.Buffer
	if err := Render(&buf, report, format); err != nil {
		respond.Error(w, r, err, "Error al exportar reporte")
		return
	}
	w.Header().Set("Content-Type", ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%d.%s"`, id, format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.FromContext(r.Context()).Error("failed to write export", "report_id", id, "error", err)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid report id %q", raw)
	}
	return id, nil
}
