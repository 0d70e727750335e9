package boltdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/iudanet/clinicsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketAuth = []byte("auth")

	bucketOffline            = []byte("offlineData")
	bucketOfflineByType      = []byte("offlineData.idx.type")
	bucketOfflineByTimestamp = []byte("offlineData.idx.timestamp")
	bucketOfflineBySynced    = []byte("offlineData.idx.synced")
	bucketOfflineByIdemKey   = []byte("offlineData.idx.idempotency")

	bucketQueue             = []byte("syncQueue")
	bucketQueueByID         = []byte("syncQueue.idx.id")
	bucketQueueByTimestamp  = []byte("syncQueue.idx.timestamp")
	bucketQueueByRetryCount = []byte("syncQueue.idx.retryCount")

	bucketCache            = []byte("apiCache")
	bucketCacheByTimestamp = []byte("apiCache.idx.timestamp")
	bucketCacheByExpiry    = []byte("apiCache.idx.expiry")
)

// allBuckets lists every bucket created on open
var allBuckets = [][]byte{
	bucketAuth,
	bucketOffline,
	bucketOfflineByType,
	bucketOfflineByTimestamp,
	bucketOfflineBySynced,
	bucketOfflineByIdemKey,
	bucketQueue,
	bucketQueueByID,
	bucketQueueByTimestamp,
	bucketQueueByRetryCount,
	bucketCache,
	bucketCacheByTimestamp,
	bucketCacheByExpiry,
}

// Collection names used in StorageError
const (
	collectionOffline = "offlineData"
	collectionQueue   = "syncQueue"
	collectionCache   = "apiCache"
	collectionAuth    = "auth"
)

// Storage represents BoltDB storage implementation for client.
// One handle per process: bbolt holds an exclusive file lock.
type Storage struct {
	db  *bbolt.DB
	now func() time.Time
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file.
// The returned storage is ready: all collections and indexes exist.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB; таймаут не дает зависнуть на чужой блокировке файла
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, storage.NewStorageError("open", dbPath, fmt.Errorf("%w: %s", storage.ErrStorageLocked, dbPath))
	}
	if err != nil {
		return nil, storage.NewStorageError("open", dbPath, fmt.Errorf("failed to open boltdb: %w", err))
	}

	s := &Storage{db: db, now: time.Now}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, storage.NewStorageError("init", dbPath, fmt.Errorf("failed to initialize buckets: %w", err))
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path
func (s *Storage) Path() string {
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// view runs fn in a read transaction, wrapping failures as StorageError
func (s *Storage) view(op, collection string, fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.NewStorageError(op, collection, storage.ErrStorageClosed)
	}
	return storage.NewStorageError(op, collection, s.db.View(fn))
}

// update runs fn in a write transaction, wrapping failures as StorageError
func (s *Storage) update(op, collection string, fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.NewStorageError(op, collection, storage.ErrStorageClosed)
	}
	return storage.NewStorageError(op, collection, s.db.Update(fn))
}

// bucket returns a named bucket or an error if it is missing
func bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}
