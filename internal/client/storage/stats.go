package storage

import "context"

// Stats summarizes the local store for dashboards and the CLI
type Stats struct {
	RecordsByType   map[string]int `json:"records_by_type"`
	Records         int            `json:"records"`
	UnsyncedRecords int            `json:"unsynced_records"`
	QueueItems      int            `json:"queue_items"`
	DeadLettered    int            `json:"dead_lettered"`
	Exhausted       int            `json:"exhausted"`
	CacheEntries    int            `json:"cache_entries"`
	ExpiredCache    int            `json:"expired_cache"`
	SizeBytes       int64          `json:"size_bytes"`
}

// StatsStorage reports collection statistics
type StatsStorage interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Store is the full local persistent store
type Store interface {
	OfflineStorage
	QueueStorage
	CacheStorage
	AuthStorage
	StatsStorage
}
