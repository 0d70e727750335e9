package storage

import (
	"context"

	"github.com/iudanet/clinicsync/internal/models"
)

//go:generate moq -out queue_mock.go . QueueStorage

// QueueFilter selects queue items. Zero value selects every item.
type QueueFilter struct {
	MaxRetryCount *int               // MaxRetryCount фильтр по индексу retryCount (включительно)
	States        []models.QueueState // States допустимые состояния
}

// QueueStorage defines the syncQueue collection
type QueueStorage interface {
	// Enqueue assigns the next FIFO sequence number and stores the item
	Enqueue(ctx context.Context, item *models.QueueItem) error

	// GetQueueItem retrieves an item by ID
	// Returns ErrQueueItemNotFound if item doesn't exist
	GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error)

	// ListQueue returns items matching filter in enqueue order
	ListQueue(ctx context.Context, filter QueueFilter) ([]*models.QueueItem, error)

	// UpdateQueueItem replaces an existing item keeping its position
	UpdateQueueItem(ctx context.Context, item *models.QueueItem) error

	// DeleteQueueItem removes an item
	DeleteQueueItem(ctx context.Context, id string) error
}
