package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/models"
)

// Stats counts records, queue items and cache entries in one read transaction
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{RecordsByType: make(map[string]int)}
	now := s.now()

	err := s.view("stats", "all", func(tx *bbolt.Tx) error {
		stats.SizeBytes = tx.Size()

		// Для записей читаем только заголовок, payload не декодируем
		records, err := bucket(tx, bucketOffline)
		if err != nil {
			return err
		}
		err = records.ForEach(func(k, v []byte) error {
			var head struct {
				Type   string `json:"type"`
				Synced bool   `json:"synced"`
			}
			if err := json.Unmarshal(v, &head); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			stats.Records++
			stats.RecordsByType[head.Type]++
			if !head.Synced {
				stats.UnsyncedRecords++
			}
			return nil
		})
		if err != nil {
			return err
		}

		queue, err := bucket(tx, bucketQueue)
		if err != nil {
			return err
		}
		err = queue.ForEach(func(k, v []byte) error {
			var item models.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to unmarshal queue item: %w", err)
			}
			stats.QueueItems++
			switch {
			case item.State == models.QueueStateDeadLettered:
				stats.DeadLettered++
			case item.Exhausted():
				stats.Exhausted++
			}
			return nil
		})
		if err != nil {
			return err
		}

		cache, err := bucket(tx, bucketCache)
		if err != nil {
			return err
		}
		return cache.ForEach(func(k, v []byte) error {
			var entry models.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal cache entry: %w", err)
			}
			stats.CacheEntries++
			if !entry.Fresh(now) {
				stats.ExpiredCache++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
