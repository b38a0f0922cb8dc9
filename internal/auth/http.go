// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Delegates the role check to an Authorizer and adds the identity to context

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/coco-gateway/internal/store"
)

// Authorizer resolves a bearer token to an identity holding at least the
// required role. Implementations must read the user's current role on
// every call.
type Authorizer interface {
	Authorize(ctx context.Context, token string, required store.Role) (*AuthContext, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that requires a bearer token
// for a user holding at least the required role.
func HTTPAuthMiddleware(authz Authorizer, required store.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeError(w, http.StatusUnauthorized, errMsg)
				return
			}

			authCtx, err := authz.Authorize(r.Context(), token, required)
			if err != nil {
				status := StatusCode(err)
				if status == 0 {
					logger.Error("authorization failed", "path", r.URL.Path, "error", err)
					writeError(w, http.StatusInternalServerError, "authorization failed")
					return
				}
				logger.Debug("request rejected", "path", r.URL.Path, "error", err)
				writeError(w, status, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
