package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/clinicsync/internal/server/storage"
)

// CreateRecord inserts a new record
func (s *Storage) CreateRecord(ctx context.Context, rec *storage.Record) error {
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt

	query := `
		INSERT INTO records (id, entity, owner_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Entity,
		rec.OwnerID,
		string(rec.Data),
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrRecordExists
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// GetRecord retrieves a single record of the owner
func (s *Storage) GetRecord(ctx context.Context, ownerID, entity, id string) (*storage.Record, error) {
	query := `
		SELECT id, entity, owner_id, data, created_at, updated_at
		FROM records
		WHERE entity = ? AND id = ? AND owner_id = ?
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, entity, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListRecords retrieves the owner's records of entity
func (s *Storage) ListRecords(ctx context.Context, ownerID, entity string) ([]*storage.Record, error) {
	query := `
		SELECT id, entity, owner_id, data, created_at, updated_at
		FROM records
		WHERE owner_id = ? AND entity = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*storage.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// UpdateRecord replaces the data of an existing record
func (s *Storage) UpdateRecord(ctx context.Context, rec *storage.Record) error {
	rec.UpdatedAt = s.now()
	query := `
		UPDATE records SET data = ?, updated_at = ?
		WHERE entity = ? AND id = ? AND owner_id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(rec.Data),
		rec.UpdatedAt.UnixNano(),
		rec.Entity,
		rec.ID,
		rec.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return expectAffected(res)
}

// DeleteRecord removes a record of the owner
func (s *Storage) DeleteRecord(ctx context.Context, ownerID, entity, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE entity = ? AND id = ? AND owner_id = ?`,
		entity, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return expectAffected(res)
}

// GetIdempotent returns the stored outcome of a keyed write
func (s *Storage) GetIdempotent(ctx context.Context, ownerID, key string) (*storage.IdempotentResponse, error) {
	query := `
		SELECT method, path, status_code, body, created_at
		FROM idempotency_keys
		WHERE owner_id = ? AND key = ?
	`
	resp := &storage.IdempotentResponse{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, ownerID, key).Scan(
		&resp.Method,
		&resp.Path,
		&resp.StatusCode,
		&resp.Body,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrIdempotencyNotFound
		}
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	resp.CreatedAt = time.Unix(0, createdAt)
	return resp, nil
}

// SaveIdempotent stores a keyed write outcome; the first outcome wins
func (s *Storage) SaveIdempotent(ctx context.Context, ownerID, key string, resp *storage.IdempotentResponse) error {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = s.now()
	}
	query := `
		INSERT OR IGNORE INTO idempotency_keys (owner_id, key, method, path, status_code, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		ownerID,
		key,
		resp.Method,
		resp.Path,
		resp.StatusCode,
		resp.Body,
		resp.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save idempotency key: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*storage.Record, error) {
	rec := &storage.Record{}
	var data string
	var createdAt, updatedAt int64
	if err := row.Scan(&rec.ID, &rec.Entity, &rec.OwnerID, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Data = []byte(data)
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.UpdatedAt = time.Unix(0, updatedAt)
	return rec, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// isUniqueViolation распознает нарушение PRIMARY KEY/UNIQUE по тексту ошибки драйвера
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
