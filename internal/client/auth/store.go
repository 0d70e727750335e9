package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/crypto"
)

// ErrSecretRequired is returned when a sealed token is read without a secret
var ErrSecretRequired = errors.New("token is sealed: secret required")

// TokenStore is the layer between the service and storage.AuthStorage.
// With a non-empty secret the token is sealed with AES-GCM before it is
// written; the argon2id salt is kept next to it.
type TokenStore struct {
	storage storage.AuthStorage
	secret  string
}

// NewTokenStore creates a TokenStore. An empty secret stores tokens as is.
func NewTokenStore(s storage.AuthStorage, secret string) *TokenStore {
	return &TokenStore{storage: s, secret: secret}
}

// Save seals (when configured) and stores auth data.
// The input is not modified.
func (s *TokenStore) Save(ctx context.Context, auth *storage.AuthData) error {
	if auth == nil {
		return fmt.Errorf("auth data is nil")
	}

	authCopy := *auth
	authCopy.Sealed = false
	authCopy.TokenSalt = ""

	if s.secret != "" {
		salt, err := crypto.GenerateSaltBase64()
		if err != nil {
			return err
		}
		key, err := crypto.DeriveKey(s.secret, salt)
		if err != nil {
			return fmt.Errorf("failed to derive token key: %w", err)
		}
		sealed, err := crypto.Seal([]byte(auth.AccessToken), key)
		if err != nil {
			return fmt.Errorf("failed to seal access token: %w", err)
		}
		authCopy.AccessToken = sealed
		authCopy.TokenSalt = salt
		authCopy.Sealed = true
	}

	return s.storage.SaveAuth(ctx, &authCopy)
}

// Load reads auth data and opens the token if it was sealed
func (s *TokenStore) Load(ctx context.Context) (*storage.AuthData, error) {
	stored, err := s.storage.GetAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !stored.Sealed {
		return stored, nil
	}
	if s.secret == "" {
		return nil, ErrSecretRequired
	}

	key, err := crypto.DeriveKey(s.secret, stored.TokenSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}
	token, err := crypto.Open(stored.AccessToken, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}

	stored.AccessToken = string(token)
	stored.Sealed = false
	stored.TokenSalt = ""
	return stored, nil
}

// Delete removes stored auth data
func (s *TokenStore) Delete(ctx context.Context) error {
	return s.storage.DeleteAuth(ctx)
}
