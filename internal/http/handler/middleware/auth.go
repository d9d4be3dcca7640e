package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"stakevault/internal/auth"
	"stakevault/internal/repository"

	"go.uber.org/zap"
)

const UserKey contextKey = "auth_user"

// AuthMiddleware validates bearer tokens and enforces role minimums.
type AuthMiddleware struct {
	logs *zap.SugaredLogger
	auth *auth.Service
}

func NewAuthMiddleware(logger *zap.SugaredLogger, authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{
		logs: logger,
		auth: authService,
	}
}

// AuthedUser is what handlers read back from the request context.
type AuthedUser struct {
	User      repository.User
	SessionID string
}

// Require wraps a handler with token validation and a minimum role.
func (m *AuthMiddleware) Require(minimumRole string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w)
			return
		}

		user, claims, err := m.auth.ValidateAccess(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrAccountDisabled) {
				forbidden(w, "account disabled")
				return
			}
			unauthorized(w)
			return
		}

		if !repository.RoleAtLeast(user.Role, minimumRole) {
			forbidden(w, "insufficient role")
			return
		}

		authed := AuthedUser{
			User:      user,
			SessionID: claims.SessionID,
		}
		ctx := context.WithValue(r.Context(), UserKey, authed)
		next(w, r.WithContext(ctx))
	}
}

// AuthedUserFrom returns the authenticated caller stashed by Require.
func AuthedUserFrom(ctx context.Context) (AuthedUser, bool) {
	authed, ok := ctx.Value(UserKey).(AuthedUser)
	return authed, ok
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized", "")
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, message, "")
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	_ = json.NewEncoder(w).Encode(body)
}
