// Package handler implements the dashboard's session endpoints: login, token
// verification, and the plain health probe.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/umbusk1/bibliofep/internal/auth/token"
	"github.com/umbusk1/bibliofep/internal/auth/users"
	gwmw "github.com/umbusk1/bibliofep/internal/gateway/middleware"
	"github.com/umbusk1/bibliofep/pkg/logger"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

const invalidCredentials = "Credenciales inválidas"

// Authenticator checks an email and password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
}

// TokenService issues and verifies session tokens.
type TokenService interface {
	Issue(userID int64, email, role string) (string, time.Time, error)
	Verify(raw string) (*token.Claims, error)
}

// Resetter clears a client's login throttle after a successful login.
type Resetter interface {
	Reset(key string)
}

type Handler struct {
	users    Authenticator
	tokens   TokenService
	throttle Resetter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Handler. throttle and m may be nil.
func New(u Authenticator, tokens TokenService, throttle Resetter, m *metrics.Metrics) *Handler {
	return &Handler{
		users:    u,
		tokens:   tokens,
		throttle: throttle,
		metrics:  m,
		logger:   slog.Default().With("component", "gateway-handler"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Message(w, r, http.StatusBadRequest, "Email y contraseña requeridos")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		h.countLogin("invalid")
		logger.FromContext(r.Context()).Info("login rejected", "email", users.NormalizeEmail(req.Email))
		respond.Message(w, r, http.StatusUnauthorized, invalidCredentials)
		return
	}
	if err != nil {
		h.countLogin("error")
		respond.Error(w, r, err, "Error en el servidor")
		return
	}

	raw, expires, err := h.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		h.countLogin("error")
		respond.Error(w, r, err, "Error en el servidor")
		return
	}
	if h.throttle != nil {
		h.throttle.Reset(gwmw.ClientIP(r))
	}
	h.countLogin("ok")
	respond.JSON(w, r, http.StatusOK, map[string]any{
		"success":   true,
		"token":     raw,
		"expiresAt": expires.UTC(),
		"user":      userInfo{ID: user.ID, Email: user.Email, Role: user.Role},
	})
}

// Verify handles GET /api/v1/auth/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(gwmw.BearerToken(r))
	if err != nil {
		msg := "Token inválido o expirado"
		if errors.Is(err, token.ErrMissingToken) {
			msg = "Token no proporcionado"
		}
		respond.JSON(w, r, http.StatusUnauthorized, map[string]any{"valid": false, "error": msg})
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]any{
		"valid": true,
		"user": map[string]any{
			"userId": claims.UserID,
			"email":  claims.Email,
			"role":   claims.Role,
		},
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}
