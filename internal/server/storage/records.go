package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one stored entity record
type Record struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string
	Entity    string
	OwnerID   string
	Data      json.RawMessage
}

// IdempotentResponse is the stored outcome of a write made with an Idempotency-Key
type IdempotentResponse struct {
	CreatedAt  time.Time
	Method     string
	Path       string
	Body       []byte
	StatusCode int
}

// RecordStorage defines interface for entity record persistence.
// Every operation is scoped to the owner.
type RecordStorage interface {
	// CreateRecord inserts a record; ErrRecordExists if the ID is taken
	CreateRecord(ctx context.Context, rec *Record) error

	// GetRecord returns ErrRecordNotFound if the record is missing
	GetRecord(ctx context.Context, ownerID, entity, id string) (*Record, error)

	// ListRecords returns the owner's records of entity ordered by creation time
	ListRecords(ctx context.Context, ownerID, entity string) ([]*Record, error)

	// UpdateRecord replaces data; ErrRecordNotFound if the record is missing
	UpdateRecord(ctx context.Context, rec *Record) error

	// DeleteRecord removes the record; ErrRecordNotFound if it is missing
	DeleteRecord(ctx context.Context, ownerID, entity, id string) error
}

// IdempotencyStorage remembers write outcomes per owner and key
type IdempotencyStorage interface {
	// GetIdempotent returns ErrIdempotencyNotFound for unseen keys
	GetIdempotent(ctx context.Context, ownerID, key string) (*IdempotentResponse, error)

	// SaveIdempotent stores the outcome; an existing entry is kept
	SaveIdempotent(ctx context.Context, ownerID, key string, resp *IdempotentResponse) error
}
