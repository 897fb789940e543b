package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/umbusk1/bibliofep/internal/ingestion"
	"github.com/umbusk1/bibliofep/internal/ingestion/validator"
	"github.com/umbusk1/bibliofep/pkg/logger"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

// Ingester stores a validated export.
type Ingester interface {
	Ingest(ctx context.Context, export *ingestion.Export) (*ingestion.UploadResult, error)
}

type Handler struct {
	ingester Ingester
	maxBytes int64
	logger   *slog.Logger
}

// New creates the upload handler. maxBytes caps the request body; zero
// leaves it unbounded.
func New(ingester Ingester, maxBytes int64) *Handler {
	return &Handler{
		ingester: ingester,
		maxBytes: maxBytes,
		logger:   slog.Default().With("component", "upload-handler"),
	}
}

// Upload handles POST /api/v1/uploads.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body := r.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	export, err := validator.DecodeExport(body)
	if err != nil {
		var validationErr *validator.ValidationError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &validationErr):
			respond.JSON(w, r, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
		case errors.As(err, &maxErr):
			respond.Message(w, r, http.StatusRequestEntityTooLarge, "file too large")
		case errors.Is(err, validator.ErrInvalidStructure):
			respond.Message(w, r, http.StatusBadRequest, validator.ErrInvalidStructure.Error())
		default:
			respond.Message(w, r, http.StatusBadRequest, validator.ErrMalformedJSON.Error())
		}
		log.Warn("upload rejected", "error", err)
		return
	}

	result, err := h.ingester.Ingest(ctx, export)
	if err != nil {
		respond.Error(w, r, err, "Error al procesar el archivo")
		return
	}
	log.Info("upload processed",
		"filename", result.Filename,
		"conversations", result.ConversationsProcessed,
		"messages", result.MessagesProcessed,
	)
	respond.JSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": "JSON procesado exitosamente",
		"stats":   result,
	})
}
