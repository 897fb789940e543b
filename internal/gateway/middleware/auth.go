// Package middleware provides the dashboard's HTTP middleware: bearer token
// authentication, role checks, CORS, and login throttling.
package middleware

import (
	"net/http"
	"strings"

	"github.com/umbusk1/bibliofep/internal/auth/token"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

// Verifier checks a raw bearer token.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

// Paths reachable without a token. Verify answers {valid:false} itself.
var publicPaths = []string{
	"/health",
	"/api/v1/auth/login",
	"/api/v1/auth/verify",
	"/api/v1/public/",
}

// Auth returns middleware that requires a valid bearer token on every
// /api/v1 route except the public ones, and stores the claims in the request
// context.
func Auth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := v.Verify(BearerToken(r))
			if err != nil {
				respond.Message(w, r, http.StatusUnauthorized, "No autorizado")
				return
			}
			next.ServeHTTP(w, r.WithContext(token.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects requests whose claims carry a different role.
func RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := token.FromContext(r.Context())
		if !ok {
			respond.Message(w, r, http.StatusUnauthorized, "No autorizado")
			return
		}
		if claims.Role != role {
			respond.Message(w, r, http.StatusForbidden, "No tienes permisos para realizar esta acción")
			return
		}
		next(w, r)
	}
}

// BearerToken returns the token from the Authorization header, or "".
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p) && (strings.HasSuffix(p, "/") || path[len(p)] == '/') {
			return true
		}
	}
	return false
}
