package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/clinicsync/internal/client/storage"
)

// Ошибки identity
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidToken     = errors.New("invalid token")
)

// Claims are the token claims the client reads
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Phone  string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// TokenService implements Service over a TokenStore
type TokenService struct {
	store  *TokenStore
	logger *slog.Logger
	now    func() time.Time
	parser *jwt.Parser
}

var _ Service = (*TokenService)(nil)

// NewService creates the identity service
func NewService(store *TokenStore, logger *slog.Logger) *TokenService {
	return &TokenService{
		store:  store,
		logger: logger,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
}

// ParseToken reads the identity from token without verifying the signature.
// The server verifies it on every request; the client only needs who and until when.
func ParseToken(parser *jwt.Parser, token string) (*storage.AuthData, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: no subject claim", ErrInvalidToken)
	}

	auth := &storage.AuthData{
		UserID:      userID,
		Phone:       claims.Phone,
		AccessToken: token,
	}
	if claims.ExpiresAt != nil {
		auth.ExpiresAt = claims.ExpiresAt.Time
	}
	return auth, nil
}

// Login stores token after reading the identity from it
func (s *TokenService) Login(ctx context.Context, token string) (*storage.AuthData, error) {
	auth, err := ParseToken(s.parser, token)
	if err != nil {
		return nil, err
	}
	if auth.Expired(s.now()) {
		return nil, ErrTokenExpired
	}

	if err := s.store.Save(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	s.logger.Info("Token stored", "user_id", auth.UserID, "expires_at", auth.ExpiresAt)
	return auth, nil
}

// Logout removes the stored token. Missing token is not an error.
func (s *TokenService) Logout(ctx context.Context) error {
	err := s.store.Delete(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		s.logger.Debug("No token to remove")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}
	return nil
}

// Identity returns the stored caller identity
func (s *TokenService) Identity(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.store.Load(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// AccessToken returns the stored token; an expired token is an error
func (s *TokenService) AccessToken(ctx context.Context) (string, error) {
	auth, err := s.Identity(ctx)
	if err != nil {
		return "", err
	}
	if auth.Expired(s.now()) {
		return "", ErrTokenExpired
	}
	return auth.AccessToken, nil
}

// IsAuthenticated reports whether an unexpired token is stored
func (s *TokenService) IsAuthenticated(ctx context.Context) (bool, error) {
	auth, err := s.Identity(ctx)
	if errors.Is(err, ErrNotAuthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !auth.Expired(s.now()), nil
}
