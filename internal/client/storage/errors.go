package storage

import (
	"errors"
	"fmt"
)

// Common client storage errors
var (
	// ErrStorage matches every failure of the local store (see StorageError)
	ErrStorage = errors.New("storage error")

	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrRecordNotFound indicates that offline record was not found
	ErrRecordNotFound = errors.New("offline record not found")

	// ErrQueueItemNotFound indicates that queue item was not found
	ErrQueueItemNotFound = errors.New("queue item not found")

	// ErrCacheMiss indicates that cache entry does not exist
	ErrCacheMiss = errors.New("cache entry not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrStorageLocked indicates that another process holds the database file
	ErrStorageLocked = errors.New("storage is locked by another process")
)

// StorageError describes a failed operation on a local collection.
// It matches ErrStorage and unwraps to the underlying cause.
type StorageError struct {
	Err        error
	Op         string
	Collection string
}

// NewStorageError wraps err for op on collection.
// Not-found sentinels are returned unchanged: absence is not a store failure.
func NewStorageError(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrQueueItemNotFound) ||
		errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrAuthNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Err: err, Op: op, Collection: collection}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
