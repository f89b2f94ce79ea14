package http

import (
	"net/http"
	"strings"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/security"
)

// AuthMiddleware validates the bearer token and places the caller's
// identity on the request context.
func AuthMiddleware(tokens security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, security.ErrInvalidToken)
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, err)
				return
			}
			if claims.Type != security.TokenTypeAccess {
				writeError(w, security.ErrInvalidToken)
				return
			}

			identity := domain.Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   claims.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin gates a route on the ADMIN role. It assumes AuthMiddleware
// already ran.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.IsAdmin() {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}
