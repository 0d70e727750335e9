package api

import (
	"encoding/json"
	"time"
)

// RecordsPathPrefix is the base path of entity collections
const RecordsPathPrefix = "/api/v1/records/"

// RecordsPath returns the collection path of entity
func RecordsPath(entity string) string {
	return RecordsPathPrefix + entity
}

// IdempotencyKeyHeader carries the client-derived idempotency key of a write
const IdempotencyKeyHeader = "Idempotency-Key"

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Time   time.Time `json:"time"`
	Status string    `json:"status"`
}

// RecordResponse представляет сохраненную на сервере запись
type RecordResponse struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	OwnerID   string          `json:"owner_id"`
	Data      json.RawMessage `json:"data"`
	Duplicate bool            `json:"duplicate,omitempty"` // запись уже была создана с тем же Idempotency-Key
}

// RecordListResponse представляет список записей сущности
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}
