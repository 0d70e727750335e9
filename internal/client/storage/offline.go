package storage

import (
	"context"
	"time"

	"github.com/iudanet/clinicsync/internal/models"
)

//go:generate moq -out offline_mock.go . OfflineStorage

// RecordFilter selects offline records through one of the secondary indexes.
// Zero value selects every record.
type RecordFilter struct {
	Type          models.RecordType // Type фильтр по индексу type
	Synced        *bool             // Synced фильтр по индексу synced
	CreatedBefore time.Time         // CreatedBefore фильтр по индексу timestamp (строго раньше)
}

// OfflineStorage defines the offlineData collection
type OfflineStorage interface {
	// PutRecord stores or replaces a record and refreshes its index entries
	PutRecord(ctx context.Context, record *models.OfflineRecord) error

	// GetRecord retrieves a record by ID
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, id string) (*models.OfflineRecord, error)

	// GetRecords returns records matching filter ordered by creation time
	GetRecords(ctx context.Context, filter RecordFilter) ([]*models.OfflineRecord, error)

	// PutRecordIfAbsent atomically stores record unless its idempotency key is taken.
	// created is false when nothing was written; existing is then the record holding
	// the key, or nil if that record has already been cleaned up
	PutRecordIfAbsent(ctx context.Context, record *models.OfflineRecord) (existing *models.OfflineRecord, created bool, err error)

	// FindRecordByIdempotencyKey returns the record created with key
	// Returns ErrRecordNotFound if none exists
	FindRecordByIdempotencyKey(ctx context.Context, key string) (*models.OfflineRecord, error)

	// MarkSynced flips the synced flag after confirmed delivery
	MarkSynced(ctx context.Context, id string, at time.Time) error

	// DeleteRecord removes a record and its index entries
	DeleteRecord(ctx context.Context, id string) error

	// CleanupSyncedBefore removes synced records created before cutoff
	// Returns the number of removed records
	CleanupSyncedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
