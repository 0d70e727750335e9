package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/models"
)

func cacheIndexKeys(e *models.CacheEntry) (byTimestamp, byExpiry []byte) {
	key := []byte(e.Key)
	return compositeKey(encodeTime(e.StoredAt), key), compositeKey(encodeTime(e.ExpiresAt), key)
}

func getCacheTx(tx *bbolt.Tx, key []byte) (*models.CacheEntry, error) {
	entries, err := bucket(tx, bucketCache)
	if err != nil {
		return nil, err
	}
	data := entries.Get(key)
	if data == nil {
		return nil, storage.ErrCacheMiss
	}
	entry := &models.CacheEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return entry, nil
}

func deleteCacheTx(tx *bbolt.Tx, entry *models.CacheEntry) error {
	byTimestamp, byExpiry := cacheIndexKeys(entry)

	tsIdx, err := bucket(tx, bucketCacheByTimestamp)
	if err != nil {
		return err
	}
	if err := tsIdx.Delete(byTimestamp); err != nil {
		return err
	}
	expIdx, err := bucket(tx, bucketCacheByExpiry)
	if err != nil {
		return err
	}
	if err := expIdx.Delete(byExpiry); err != nil {
		return err
	}
	entries, err := bucket(tx, bucketCache)
	if err != nil {
		return err
	}
	return entries.Delete([]byte(entry.Key))
}

// PutCache stores or replaces a cache entry
func (s *Storage) PutCache(ctx context.Context, entry *models.CacheEntry) error {
	if entry.Key == "" {
		return storage.NewStorageError("put", collectionCache, fmt.Errorf("cache key is empty"))
	}

	return s.update("put", collectionCache, func(tx *bbolt.Tx) error {
		prev, err := getCacheTx(tx, []byte(entry.Key))
		switch {
		case err == nil:
			if err := deleteCacheTx(tx, prev); err != nil {
				return fmt.Errorf("failed to replace cache entry: %w", err)
			}
		case err != storage.ErrCacheMiss:
			return err
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry: %w", err)
		}
		entries, err := bucket(tx, bucketCache)
		if err != nil {
			return err
		}
		if err := entries.Put([]byte(entry.Key), data); err != nil {
			return fmt.Errorf("failed to save cache entry: %w", err)
		}

		byTimestamp, byExpiry := cacheIndexKeys(entry)
		tsIdx, err := bucket(tx, bucketCacheByTimestamp)
		if err != nil {
			return err
		}
		if err := tsIdx.Put(byTimestamp, []byte(entry.Key)); err != nil {
			return err
		}
		expIdx, err := bucket(tx, bucketCacheByExpiry)
		if err != nil {
			return err
		}
		return expIdx.Put(byExpiry, []byte(entry.Key))
	})
}

// GetCache retrieves a cache entry regardless of its expiry
func (s *Storage) GetCache(ctx context.Context, key string) (*models.CacheEntry, error) {
	var entry *models.CacheEntry
	err := s.view("get", collectionCache, func(tx *bbolt.Tx) error {
		var err error
		entry, err = getCacheTx(tx, []byte(key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteCache removes a cache entry; missing keys are not an error
func (s *Storage) DeleteCache(ctx context.Context, key string) error {
	return s.update("delete", collectionCache, func(tx *bbolt.Tx) error {
		entry, err := getCacheTx(tx, []byte(key))
		if err == storage.ErrCacheMiss {
			return nil
		}
		if err != nil {
			return err
		}
		return deleteCacheTx(tx, entry)
	})
}

// DeleteExpiredCache removes entries whose ExpiresAt is not after now.
// The expiry index is ordered, so the scan stops at the first live entry.
func (s *Storage) DeleteExpiredCache(ctx context.Context, now time.Time) (int, error) {
	removed := 0

	err := s.update("cleanup", collectionCache, func(tx *bbolt.Tx) error {
		expIdx, err := bucket(tx, bucketCacheByExpiry)
		if err != nil {
			return err
		}

		limit := encodeTime(now)
		var keys [][]byte
		c := expIdx.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if bytes.Compare(k[:8], limit) > 0 {
				break
			}
			keys = append(keys, append([]byte(nil), v...))
		}

		for _, key := range keys {
			entry, err := getCacheTx(tx, key)
			if err == storage.ErrCacheMiss {
				continue
			}
			if err != nil {
				return err
			}
			if err := deleteCacheTx(tx, entry); err != nil {
				return fmt.Errorf("failed to delete expired entry: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}
