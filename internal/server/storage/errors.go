package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that the record does not exist or belongs to another owner
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates that a record with this ID already exists
	ErrRecordExists = errors.New("record already exists")

	// ErrIdempotencyNotFound indicates that no write was recorded for the key
	ErrIdempotencyNotFound = errors.New("idempotency key not found")
)
