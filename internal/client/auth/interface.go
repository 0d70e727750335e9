package auth

import (
	"context"

	"github.com/iudanet/clinicsync/internal/client/storage"
)

//go:generate moq -out service_mock.go . Service

// Service defines caller identity operations.
// The token is issued outside this program: the client never signs in
// against the server, it only keeps the token and reads who the caller is.
type Service interface {
	// Login проверяет формат токена, извлекает identity и сохраняет токен локально
	Login(ctx context.Context, token string) (*storage.AuthData, error)

	// Logout удаляет сохраненный токен
	Logout(ctx context.Context) error

	// Identity возвращает данные текущего пользователя
	// Returns ErrNotAuthenticated if no token is stored
	Identity(ctx context.Context) (*storage.AuthData, error)

	// AccessToken returns the stored token for the Authorization header
	AccessToken(ctx context.Context) (string, error)

	// IsAuthenticated reports whether an unexpired token is stored
	IsAuthenticated(ctx context.Context) (bool, error)
}
