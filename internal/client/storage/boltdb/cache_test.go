package boltdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/models"
)

func createTestCacheEntry(key string, ttl time.Duration) *models.CacheEntry {
	return &models.CacheEntry{
		StoredAt:  baseTime,
		ExpiresAt: baseTime.Add(ttl),
		Key:       key,
		Payload:   json.RawMessage(`{"clinics":[]}`),
	}
}

func TestStorage_PutGetCache(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	entry := createTestCacheEntry("GET /api/v1/clinics", time.Minute)
	require.NoError(t, store.PutCache(ctx, entry))

	got, err := store.GetCache(ctx, entry.Key)
	require.NoError(t, err)
	assert.JSONEq(t, string(entry.Payload), string(got.Payload))
	assert.True(t, entry.ExpiresAt.Equal(got.ExpiresAt))

	_, err = store.GetCache(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
}

func TestStorage_PutCache_ReplacesIndexes(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.PutCache(ctx, createTestCacheEntry("k", time.Second)))
	// Перезапись с более длинным TTL: старый ключ индекса expiry не должен удалить запись
	require.NoError(t, store.PutCache(ctx, createTestCacheEntry("k", time.Hour)))

	removed, err := store.DeleteExpiredCache(ctx, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = store.GetCache(ctx, "k")
	assert.NoError(t, err)
}

func TestStorage_DeleteExpiredCache(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.PutCache(ctx, createTestCacheEntry("short", time.Second)))
	require.NoError(t, store.PutCache(ctx, createTestCacheEntry("exact", time.Minute)))
	require.NoError(t, store.PutCache(ctx, createTestCacheEntry("long", time.Hour)))

	// Запись с ExpiresAt == now уже истекла
	removed, err := store.DeleteExpiredCache(ctx, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.GetCache(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
	_, err = store.GetCache(ctx, "exact")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
	_, err = store.GetCache(ctx, "long")
	assert.NoError(t, err)
}

func TestStorage_DeleteCache(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.PutCache(ctx, createTestCacheEntry("k", time.Second)))
	require.NoError(t, store.DeleteCache(ctx, "k"))
	require.NoError(t, store.DeleteCache(ctx, "k"))

	removed, err := store.DeleteExpiredCache(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
