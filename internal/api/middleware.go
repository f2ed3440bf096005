package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/cjmeyer/gridverse/internal/auth"
	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenVerifier checks session tokens on protected routes. *auth.Manager
// satisfies it.
type TokenVerifier interface {
	Verify(tokenString string) (auth.Claims, error)
}

// Authenticate requires a valid "Bearer <token>" Authorization header and
// stores the verified claims in the request context. Requests without a
// valid token get 403, matching the platform's client contract.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if header == "" || token == header {
				writeError(w, r, http.StatusForbidden, "missing or malformed authorization header")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, http.StatusForbidden, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose verified claims do not carry the admin
// role. Must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok || claims.Role != postgres.RoleAdmin {
			writeError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFrom extracts the verified claims stored by Authenticate.
func ClaimsFrom(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(auth.Claims)
	return claims, ok
}
