package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/models"
)

func queueIndexKeys(item *models.QueueItem) (byTimestamp, byRetryCount []byte) {
	seq := encodeUint64(item.Seq)
	byTimestamp = compositeKey(encodeTime(item.EnqueuedAt), seq)
	byRetryCount = compositeKey(encodeUint32(uint32(item.RetryCount)), seq)
	return byTimestamp, byRetryCount
}

func putQueueIndexesTx(tx *bbolt.Tx, item *models.QueueItem) error {
	byTimestamp, byRetryCount := queueIndexKeys(item)
	seq := encodeUint64(item.Seq)

	for _, pair := range []struct {
		name []byte
		key  []byte
	}{
		{bucketQueueByID, []byte(item.ID)},
		{bucketQueueByTimestamp, byTimestamp},
		{bucketQueueByRetryCount, byRetryCount},
	} {
		idx, err := bucket(tx, pair.name)
		if err != nil {
			return err
		}
		if err := idx.Put(pair.key, seq); err != nil {
			return fmt.Errorf("failed to update %s: %w", pair.name, err)
		}
	}
	return nil
}

func deleteQueueIndexesTx(tx *bbolt.Tx, item *models.QueueItem) error {
	byTimestamp, byRetryCount := queueIndexKeys(item)

	for _, pair := range []struct {
		name []byte
		key  []byte
	}{
		{bucketQueueByID, []byte(item.ID)},
		{bucketQueueByTimestamp, byTimestamp},
		{bucketQueueByRetryCount, byRetryCount},
	} {
		idx, err := bucket(tx, pair.name)
		if err != nil {
			return err
		}
		if err := idx.Delete(pair.key); err != nil {
			return fmt.Errorf("failed to delete %s key: %w", pair.name, err)
		}
	}
	return nil
}

// getQueueItemTx находит элемент по ID через индекс id -> seq
func getQueueItemTx(tx *bbolt.Tx, id string) (*models.QueueItem, error) {
	byID, err := bucket(tx, bucketQueueByID)
	if err != nil {
		return nil, err
	}
	seq := byID.Get([]byte(id))
	if seq == nil {
		return nil, storage.ErrQueueItemNotFound
	}
	return getQueueItemBySeqTx(tx, seq)
}

func getQueueItemBySeqTx(tx *bbolt.Tx, seq []byte) (*models.QueueItem, error) {
	queue, err := bucket(tx, bucketQueue)
	if err != nil {
		return nil, err
	}
	data := queue.Get(seq)
	if data == nil {
		return nil, storage.ErrQueueItemNotFound
	}
	item := &models.QueueItem{}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}
	return item, nil
}

func writeQueueItemTx(tx *bbolt.Tx, item *models.QueueItem) error {
	queue, err := bucket(tx, bucketQueue)
	if err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := queue.Put(encodeUint64(item.Seq), data); err != nil {
		return fmt.Errorf("failed to save queue item: %w", err)
	}
	return putQueueIndexesTx(tx, item)
}

// Enqueue appends item to the queue.
// Seq is taken from the bucket sequence, so key order is enqueue order.
func (s *Storage) Enqueue(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		return storage.NewStorageError("enqueue", collectionQueue, fmt.Errorf("queue item id is empty"))
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = s.now()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.EnqueuedAt
	}

	return s.update("enqueue", collectionQueue, func(tx *bbolt.Tx) error {
		queue, err := bucket(tx, bucketQueue)
		if err != nil {
			return err
		}
		byID, err := bucket(tx, bucketQueueByID)
		if err != nil {
			return err
		}
		if byID.Get([]byte(item.ID)) != nil {
			return fmt.Errorf("queue item %s already exists", item.ID)
		}

		seq, err := queue.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		item.Seq = seq

		return writeQueueItemTx(tx, item)
	})
}

// GetQueueItem retrieves a queue item by ID
func (s *Storage) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.view("get", collectionQueue, func(tx *bbolt.Tx) error {
		var err error
		item, err = getQueueItemTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListQueue returns queue items matching filter in enqueue (FIFO) order
func (s *Storage) ListQueue(ctx context.Context, filter storage.QueueFilter) ([]*models.QueueItem, error) {
	var items []*models.QueueItem

	err := s.view("list", collectionQueue, func(tx *bbolt.Tx) error {
		if filter.MaxRetryCount != nil {
			// Обходим индекс retryCount до верхней границы
			idx, err := bucket(tx, bucketQueueByRetryCount)
			if err != nil {
				return err
			}
			limit := encodeUint32(uint32(*filter.MaxRetryCount))
			c := idx.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if string(k[:4]) > string(limit) {
					break
				}
				item, err := getQueueItemBySeqTx(tx, v)
				if err != nil {
					return err
				}
				if matchQueueItem(item, filter) {
					items = append(items, item)
				}
			}
			return nil
		}

		queue, err := bucket(tx, bucketQueue)
		if err != nil {
			return err
		}
		return queue.ForEach(func(k, v []byte) error {
			item := &models.QueueItem{}
			if err := json.Unmarshal(v, item); err != nil {
				return fmt.Errorf("failed to unmarshal queue item: %w", err)
			}
			if matchQueueItem(item, filter) {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	return items, nil
}

func matchQueueItem(item *models.QueueItem, f storage.QueueFilter) bool {
	if f.MaxRetryCount != nil && item.RetryCount > *f.MaxRetryCount {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, st := range f.States {
		if item.State == st {
			return true
		}
	}
	return false
}

// UpdateQueueItem replaces an existing item keeping its sequence number
func (s *Storage) UpdateQueueItem(ctx context.Context, item *models.QueueItem) error {
	return s.update("update", collectionQueue, func(tx *bbolt.Tx) error {
		existing, err := getQueueItemTx(tx, item.ID)
		if err != nil {
			return err
		}
		if err := deleteQueueIndexesTx(tx, existing); err != nil {
			return err
		}

		// Позиция в очереди неизменна
		item.Seq = existing.Seq
		item.EnqueuedAt = existing.EnqueuedAt
		item.UpdatedAt = s.now()

		return writeQueueItemTx(tx, item)
	})
}

// DeleteQueueItem removes an item from the queue
func (s *Storage) DeleteQueueItem(ctx context.Context, id string) error {
	return s.update("delete", collectionQueue, func(tx *bbolt.Tx) error {
		item, err := getQueueItemTx(tx, id)
		if err != nil {
			return err
		}
		if err := deleteQueueIndexesTx(tx, item); err != nil {
			return err
		}
		queue, err := bucket(tx, bucketQueue)
		if err != nil {
			return err
		}
		return queue.Delete(encodeUint64(item.Seq))
	})
}
