package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/akhtararif14-hash/campusly/internal/auth"
)

type contextKey string

const UserIDContextKey contextKey = "user_id"

// AuthMiddleware verifies bearer tokens issued by the campus auth service.
type AuthMiddleware struct {
	verifier *auth.Verifier
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verifier *auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth rejects requests without a valid Authorization bearer token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.authenticate(next, false)
}

// RequireAuthOrQuery also accepts the token in the "token" query parameter,
// since browsers cannot set headers on a websocket handshake.
func (m *AuthMiddleware) RequireAuthOrQuery(next http.Handler) http.Handler {
	return m.authenticate(next, true)
}

func (m *AuthMiddleware) authenticate(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" && allowQuery {
			token = r.URL.Query().Get("token")
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				jsonError(w, http.StatusUnauthorized, "missing bearer token")
			case errors.Is(err, auth.ErrTokenExpired):
				jsonError(w, http.StatusUnauthorized, "token expired")
			default:
				jsonError(w, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserIDFromContext retrieves the authenticated user id from the request context.
func GetUserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(UserIDContextKey).(string)
	return id
}
