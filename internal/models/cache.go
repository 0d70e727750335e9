package models

import (
	"encoding/json"
	"time"
)

// CacheEntry представляет закэшированный ответ сервера
type CacheEntry struct {
	StoredAt  time.Time       `json:"stored_at"`  // StoredAt время сохранения
	ExpiresAt time.Time       `json:"expires_at"` // ExpiresAt время истечения
	Key       string          `json:"key"`        // Key идентификатор запроса
	Payload   json.RawMessage `json:"payload"`    // Payload тело ответа
}

// Fresh reports whether the entry is still visible at now.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
