package storage

import (
	"context"
	"time"
)

//go:generate moq -out auth_mock.go . AuthStorage

// AuthStorage defines interface for storing the caller token on client.
// The token is obtained outside this program; the client only keeps it
// and derives the caller identity from it.
type AuthStorage interface {
	// SaveAuth stores authentication data
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	DeleteAuth(ctx context.Context) error
}

// AuthData represents authentication information in storage
type AuthData struct {
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Phone       string    `json:"phone,omitempty"`
	AccessToken string    `json:"access_token"`
	TokenSalt   string    `json:"token_salt,omitempty"` // соль ключа шифрования токена (base64)
	Sealed      bool      `json:"sealed,omitempty"`     // AccessToken зашифрован
}

// Expired reports whether the token is past its expiry at now.
// A zero ExpiresAt never expires.
func (a *AuthData) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
