package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/clinicsync/internal/server/handlers"
	"github.com/iudanet/clinicsync/internal/server/jwt"
	"github.com/iudanet/clinicsync/pkg/api"
)

// TokenValidator validates a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware создает middleware для проверки JWT токена.
// The token subject becomes the caller identity that scopes record access.
func AuthMiddleware(logger *slog.Logger, tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				unauthorized(w, "missing token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.Warn("Invalid Authorization header format")
				unauthorized(w, "invalid token format")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				unauthorized(w, msg)
				return
			}

			logger.Debug("Caller authenticated", "user_id", claims.Subject)
			ctx := handlers.WithUser(r.Context(), claims.Subject, claims.Phone)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized", Message: msg})
}
