// Package cache implements the TTL response cache on top of the local store.
// Expired entries are treated as absent on read; Cleanup removes them
// physically.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/metrics"
	"github.com/iudanet/clinicsync/internal/models"
)

// DefaultTTL применяется, если ttl не задан
const DefaultTTL = 5 * time.Minute

// Cache is a read-through response cache
type Cache struct {
	store  storage.CacheStorage
	logger *slog.Logger
	now    func() time.Time
	cron   *cron.Cron
	mu     sync.Mutex
}

// Option configures Cache
type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over store
func New(store storage.CacheStorage, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key until now+ttl.
// A non-positive ttl means DefaultTTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	now := c.now()
	entry := &models.CacheEntry{
		Key:       key,
		Payload:   payload,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.PutCache(ctx, entry); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Get decodes the cached value for key into out.
// It reports false for a missing or expired entry; that is not an error.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	entry, err := c.store.GetCache(ctx, key)
	if errors.Is(err, storage.ErrCacheMiss) {
		metrics.ObserveCacheLookup(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if !entry.Fresh(c.now()) {
		metrics.ObserveCacheLookup(false)
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal(entry.Payload, out); err != nil {
			return false, fmt.Errorf("failed to decode cache entry: %w", err)
		}
	}
	metrics.ObserveCacheLookup(true)
	return true, nil
}

// Invalidate removes key from the cache
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.DeleteCache(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// Fetch returns the cached value for key or calls fetch and caches its result.
// A failed fetch is returned as is and nothing is cached.
func (c *Cache) Fetch(ctx context.Context, key string, ttl time.Duration, out any, fetch func(ctx context.Context, out any) error) error {
	hit, err := c.Get(ctx, key, out)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}

	if err := fetch(ctx, out); err != nil {
		return err
	}
	return c.Set(ctx, key, out, ttl)
}

// Cleanup removes expired entries and returns how many were removed
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	removed, err := c.store.DeleteExpiredCache(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup cache: %w", err)
	}
	if removed > 0 {
		c.logger.Debug("Expired cache entries removed", "count", removed)
	}
	return removed, nil
}

// Start runs Cleanup every interval until Stop
func (c *Cache) Start(ctx context.Context, interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return nil
	}

	cr := cron.New(cron.WithLocation(time.UTC))
	_, err := cr.AddFunc("@every "+interval.String(), func() {
		if _, err := c.Cleanup(ctx); err != nil {
			c.logger.Error("Cache cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cache cleanup: %w", err)
	}

	c.cron = cr
	cr.Start()
	return nil
}

// Stop ends periodic cleanup
func (c *Cache) Stop() {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
}
