package storage

import (
	"context"
	"time"

	"github.com/iudanet/clinicsync/internal/models"
)

//go:generate moq -out cache_mock.go . CacheStorage

// CacheStorage defines the apiCache collection
type CacheStorage interface {
	// PutCache stores or replaces an entry
	PutCache(ctx context.Context, entry *models.CacheEntry) error

	// GetCache retrieves an entry regardless of expiry
	// Returns ErrCacheMiss if entry doesn't exist
	GetCache(ctx context.Context, key string) (*models.CacheEntry, error)

	// DeleteCache removes an entry
	DeleteCache(ctx context.Context, key string) error

	// DeleteExpiredCache removes entries with ExpiresAt not after now
	// Returns the number of removed entries
	DeleteExpiredCache(ctx context.Context, now time.Time) (int, error)
}
