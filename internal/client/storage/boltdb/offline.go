package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/models"
)

// recordIndexKeys возвращает ключи всех индексов для записи
func recordIndexKeys(r *models.OfflineRecord) (byType, byTimestamp, bySynced []byte) {
	ts := encodeTime(r.CreatedAt)
	id := []byte(r.ID)
	byType = compositeKey(stringPrefix(string(r.Type)), ts, id)
	byTimestamp = compositeKey(ts, id)
	bySynced = compositeKey(boolByte(r.Synced), ts, id)
	return byType, byTimestamp, bySynced
}

// putRecordTx сохраняет запись и обновляет индексы в рамках транзакции
func putRecordTx(tx *bbolt.Tx, record *models.OfflineRecord) error {
	records, err := bucket(tx, bucketOffline)
	if err != nil {
		return err
	}

	// Удаляем индексы предыдущей версии записи
	if old := records.Get([]byte(record.ID)); old != nil {
		var prev models.OfflineRecord
		if err := json.Unmarshal(old, &prev); err != nil {
			return fmt.Errorf("failed to unmarshal previous record: %w", err)
		}
		if err := deleteRecordIndexesTx(tx, &prev, false); err != nil {
			return err
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := records.Put([]byte(record.ID), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	byType, byTimestamp, bySynced := recordIndexKeys(record)
	id := []byte(record.ID)
	for name, key := range map[string][]byte{
		string(bucketOfflineByType):      byType,
		string(bucketOfflineByTimestamp): byTimestamp,
		string(bucketOfflineBySynced):    bySynced,
	} {
		idx, err := bucket(tx, []byte(name))
		if err != nil {
			return err
		}
		if err := idx.Put(key, id); err != nil {
			return fmt.Errorf("failed to update %s: %w", name, err)
		}
	}

	if record.IdempotencyKey != "" {
		idx, err := bucket(tx, bucketOfflineByIdemKey)
		if err != nil {
			return err
		}
		if err := idx.Put([]byte(record.IdempotencyKey), id); err != nil {
			return fmt.Errorf("failed to update idempotency index: %w", err)
		}
	}

	return nil
}

// deleteRecordIndexesTx удаляет индексные ключи записи.
// keepIdemKey оставляет ключ идемпотентности как метку уже принятой записи.
func deleteRecordIndexesTx(tx *bbolt.Tx, record *models.OfflineRecord, keepIdemKey bool) error {
	byType, byTimestamp, bySynced := recordIndexKeys(record)
	for _, pair := range []struct {
		name []byte
		key  []byte
	}{
		{bucketOfflineByType, byType},
		{bucketOfflineByTimestamp, byTimestamp},
		{bucketOfflineBySynced, bySynced},
	} {
		idx, err := bucket(tx, pair.name)
		if err != nil {
			return err
		}
		if err := idx.Delete(pair.key); err != nil {
			return fmt.Errorf("failed to delete index key: %w", err)
		}
	}

	if record.IdempotencyKey != "" && !keepIdemKey {
		idx, err := bucket(tx, bucketOfflineByIdemKey)
		if err != nil {
			return err
		}
		// Ключ идемпотентности указывает только на одну запись
		if bytes.Equal(idx.Get([]byte(record.IdempotencyKey)), []byte(record.ID)) {
			if err := idx.Delete([]byte(record.IdempotencyKey)); err != nil {
				return fmt.Errorf("failed to delete idempotency key: %w", err)
			}
		}
	}
	return nil
}

func getRecordTx(tx *bbolt.Tx, id []byte) (*models.OfflineRecord, error) {
	records, err := bucket(tx, bucketOffline)
	if err != nil {
		return nil, err
	}
	data := records.Get(id)
	if data == nil {
		return nil, storage.ErrRecordNotFound
	}
	record := &models.OfflineRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return record, nil
}

func (s *Storage) checkRecord(op string, record *models.OfflineRecord) error {
	if record.ID == "" {
		return storage.NewStorageError(op, collectionOffline, fmt.Errorf("record id is empty"))
	}
	if !record.Type.Valid() {
		return storage.NewStorageError(op, collectionOffline, fmt.Errorf("%w: %q", models.ErrUnknownRecordType, record.Type))
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	return nil
}

// PutRecord stores or replaces an offline record.
// A zero CreatedAt is set to the current time.
func (s *Storage) PutRecord(ctx context.Context, record *models.OfflineRecord) error {
	if err := s.checkRecord("put", record); err != nil {
		return err
	}

	return s.update("put", collectionOffline, func(tx *bbolt.Tx) error {
		return putRecordTx(tx, record)
	})
}

// PutRecordIfAbsent stores record unless its idempotency key is already taken.
// The lookup and the insert share one transaction.
// When the key is taken nothing is written and created is false; existing is the
// record holding the key, or nil if that record was removed by cleanup.
func (s *Storage) PutRecordIfAbsent(ctx context.Context, record *models.OfflineRecord) (existing *models.OfflineRecord, created bool, err error) {
	if err := s.checkRecord("put", record); err != nil {
		return nil, false, err
	}
	if record.IdempotencyKey == "" {
		return nil, false, storage.NewStorageError("put", collectionOffline, fmt.Errorf("idempotency key is empty"))
	}

	err = s.update("put", collectionOffline, func(tx *bbolt.Tx) error {
		idx, err := bucket(tx, bucketOfflineByIdemKey)
		if err != nil {
			return err
		}
		if id := idx.Get([]byte(record.IdempotencyKey)); id != nil {
			existing, err = getRecordTx(tx, id)
			if err == storage.ErrRecordNotFound {
				// Метка от очищенной записи
				existing, err = nil, nil
			}
			return err
		}
		created = true
		return putRecordTx(tx, record)
	})
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

// GetRecord retrieves an offline record by ID
func (s *Storage) GetRecord(ctx context.Context, id string) (*models.OfflineRecord, error) {
	var record *models.OfflineRecord
	err := s.view("get", collectionOffline, func(tx *bbolt.Tx) error {
		var err error
		record, err = getRecordTx(tx, []byte(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecords returns records matching filter ordered by creation time.
// The most selective index available for the filter drives the scan.
func (s *Storage) GetRecords(ctx context.Context, filter storage.RecordFilter) ([]*models.OfflineRecord, error) {
	var records []*models.OfflineRecord

	err := s.view("list", collectionOffline, func(tx *bbolt.Tx) error {
		var (
			idxName []byte
			prefix  []byte
		)
		switch {
		case filter.Type != "":
			idxName, prefix = bucketOfflineByType, stringPrefix(string(filter.Type))
		case filter.Synced != nil:
			idxName, prefix = bucketOfflineBySynced, boolByte(*filter.Synced)
		default:
			idxName = bucketOfflineByTimestamp
		}

		idx, err := bucket(tx, idxName)
		if err != nil {
			return err
		}

		c := idx.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			record, err := getRecordTx(tx, v)
			if err != nil {
				return err
			}
			if !matchRecord(record, filter) {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Индекс type и synced уже упорядочен по времени внутри префикса
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func matchRecord(r *models.OfflineRecord, f storage.RecordFilter) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Synced != nil && r.Synced != *f.Synced {
		return false
	}
	if !f.CreatedBefore.IsZero() && !r.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// FindRecordByIdempotencyKey returns the record created with key
func (s *Storage) FindRecordByIdempotencyKey(ctx context.Context, key string) (*models.OfflineRecord, error) {
	if key == "" {
		return nil, storage.ErrRecordNotFound
	}

	var record *models.OfflineRecord
	err := s.view("find", collectionOffline, func(tx *bbolt.Tx) error {
		idx, err := bucket(tx, bucketOfflineByIdemKey)
		if err != nil {
			return err
		}
		id := idx.Get([]byte(key))
		if id == nil {
			return storage.ErrRecordNotFound
		}
		record, err = getRecordTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// MarkSynced flips the synced flag of a record
func (s *Storage) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return s.update("mark_synced", collectionOffline, func(tx *bbolt.Tx) error {
		record, err := getRecordTx(tx, []byte(id))
		if err != nil {
			return err
		}
		if record.Synced {
			return nil
		}
		record.Synced = true
		record.SyncedAt = &at
		return putRecordTx(tx, record)
	})
}

// DeleteRecord removes a record and its index entries
func (s *Storage) DeleteRecord(ctx context.Context, id string) error {
	return s.update("delete", collectionOffline, func(tx *bbolt.Tx) error {
		record, err := getRecordTx(tx, []byte(id))
		if err != nil {
			return err
		}
		if err := deleteRecordIndexesTx(tx, record, false); err != nil {
			return err
		}
		records, err := bucket(tx, bucketOffline)
		if err != nil {
			return err
		}
		return records.Delete([]byte(id))
	})
}

// CleanupSyncedBefore removes synced records created before cutoff.
// Unsynced records are never removed. Idempotency keys of removed records
// stay in the index, so a redelivered write is still recognized.
func (s *Storage) CleanupSyncedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0

	err := s.update("cleanup", collectionOffline, func(tx *bbolt.Tx) error {
		idx, err := bucket(tx, bucketOfflineBySynced)
		if err != nil {
			return err
		}
		records, err := bucket(tx, bucketOffline)
		if err != nil {
			return err
		}

		// Собираем кандидатов до удаления: нельзя менять bucket под курсором
		prefix := boolByte(true)
		limit := compositeKey(prefix, encodeTime(cutoff))
		var victims []*models.OfflineRecord

		c := idx.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if bytes.Compare(k[:len(limit)], limit) >= 0 {
				break
			}
			record, err := getRecordTx(tx, v)
			if err != nil {
				return err
			}
			victims = append(victims, record)
		}

		for _, record := range victims {
			if err := deleteRecordIndexesTx(tx, record, true); err != nil {
				return err
			}
			if err := records.Delete([]byte(record.ID)); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
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
