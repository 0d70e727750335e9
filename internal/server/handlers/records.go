package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iudanet/clinicsync/internal/server/storage"
	"github.com/iudanet/clinicsync/pkg/api"
)

// maxBodyBytes ограничение размера тела записи
const maxBodyBytes = 1 << 20

// ReplayedHeader marks a response replayed for a repeated Idempotency-Key
const ReplayedHeader = "Idempotent-Replayed"

// RecordStore is the storage the records handler needs
type RecordStore interface {
	storage.RecordStorage
	storage.IdempotencyStorage
}

// ChangePublisher fans record changes out to feed subscribers
type ChangePublisher interface {
	Publish(ownerID string, frame api.ChangeFrame)
}

// RecordsHandler serves entity collections under /api/v1/records/{entity}
type RecordsHandler struct {
	logger  *slog.Logger
	store   RecordStore
	changes ChangePublisher
}

// NewRecordsHandler creates a records handler; changes may be nil
func NewRecordsHandler(logger *slog.Logger, store RecordStore, changes ChangePublisher) *RecordsHandler {
	return &RecordsHandler{
		logger:  logger,
		store:   store,
		changes: changes,
	}
}

// result is the outcome of one write before it is encoded
type result struct {
	body   any
	status int
}

// List обрабатывает GET /api/v1/records/{entity}
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(h.logger, w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	entity := chi.URLParam(r, "entity")

	records, err := h.store.ListRecords(r.Context(), userID, entity)
	if err != nil {
		h.logger.Error("Failed to list records", "entity", entity, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "failed to list records")
		return
	}

	resp := api.RecordListResponse{Records: make([]api.RecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, toResponse(rec))
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

// Create обрабатывает POST /api/v1/records/{entity}.
// The record id is taken from the body "id" field or generated.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(userID string, body map[string]any) result {
		entity := chi.URLParam(r, "entity")

		id, _ := body["id"].(string)
		if id == "" {
			id = uuid.New().String()
			body["id"] = id
		}
		data, err := json.Marshal(body)
		if err != nil {
			return result{status: http.StatusBadRequest, body: errorBody(http.StatusBadRequest, "invalid record body")}
		}

		rec := &storage.Record{ID: id, Entity: entity, OwnerID: userID, Data: data}
		err = h.store.CreateRecord(r.Context(), rec)
		if errors.Is(err, storage.ErrRecordExists) {
			// Повтор без Idempotency-Key: та же запись того же владельца не дублируется
			existing, getErr := h.store.GetRecord(r.Context(), userID, entity, id)
			if getErr != nil {
				return result{status: http.StatusConflict, body: errorBody(http.StatusConflict, "record id already taken")}
			}
			resp := toResponse(existing)
			resp.Duplicate = true
			return result{status: http.StatusOK, body: resp}
		}
		if err != nil {
			h.logger.Error("Failed to create record", "entity", entity, "error", err)
			return result{status: http.StatusInternalServerError, body: errorBody(http.StatusInternalServerError, "failed to create record")}
		}

		h.logger.Info("Record created", "entity", entity, "id", id, "owner_id", userID)
		h.publish(userID, api.EventInsert, rec, nil)
		return result{status: http.StatusCreated, body: toResponse(rec)}
	})
}

// Replace обрабатывает PUT /api/v1/records/{entity}/{id}
func (h *RecordsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// Patch обрабатывает PATCH /api/v1/records/{entity}/{id}; top-level fields are merged
func (h *RecordsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *RecordsHandler) update(w http.ResponseWriter, r *http.Request, merge bool) {
	h.write(w, r, func(userID string, body map[string]any) result {
		entity, id := chi.URLParam(r, "entity"), chi.URLParam(r, "id")

		old, err := h.store.GetRecord(r.Context(), userID, entity, id)
		if errors.Is(err, storage.ErrRecordNotFound) {
			return result{status: http.StatusNotFound, body: errorBody(http.StatusNotFound, "record not found")}
		}
		if err != nil {
			h.logger.Error("Failed to get record", "entity", entity, "id", id, "error", err)
			return result{status: http.StatusInternalServerError, body: errorBody(http.StatusInternalServerError, "failed to update record")}
		}

		fields := body
		if merge {
			fields = map[string]any{}
			if err := json.Unmarshal(old.Data, &fields); err != nil {
				fields = map[string]any{}
			}
			for k, v := range body {
				fields[k] = v
			}
		}
		fields["id"] = id

		data, err := json.Marshal(fields)
		if err != nil {
			return result{status: http.StatusBadRequest, body: errorBody(http.StatusBadRequest, "invalid record body")}
		}
		rec := &storage.Record{ID: id, Entity: entity, OwnerID: userID, Data: data, CreatedAt: old.CreatedAt}
		if err := h.store.UpdateRecord(r.Context(), rec); err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				return result{status: http.StatusNotFound, body: errorBody(http.StatusNotFound, "record not found")}
			}
			h.logger.Error("Failed to update record", "entity", entity, "id", id, "error", err)
			return result{status: http.StatusInternalServerError, body: errorBody(http.StatusInternalServerError, "failed to update record")}
		}

		h.logger.Info("Record updated", "entity", entity, "id", id, "owner_id", userID)
		h.publish(userID, api.EventUpdate, rec, old)
		return result{status: http.StatusOK, body: toResponse(rec)}
	})
}

// Delete обрабатывает DELETE /api/v1/records/{entity}/{id}
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(userID string, _ map[string]any) result {
		entity, id := chi.URLParam(r, "entity"), chi.URLParam(r, "id")

		old, err := h.store.GetRecord(r.Context(), userID, entity, id)
		if err == nil {
			err = h.store.DeleteRecord(r.Context(), userID, entity, id)
		}
		if errors.Is(err, storage.ErrRecordNotFound) {
			return result{status: http.StatusNotFound, body: errorBody(http.StatusNotFound, "record not found")}
		}
		if err != nil {
			h.logger.Error("Failed to delete record", "entity", entity, "id", id, "error", err)
			return result{status: http.StatusInternalServerError, body: errorBody(http.StatusInternalServerError, "failed to delete record")}
		}

		h.logger.Info("Record deleted", "entity", entity, "id", id, "owner_id", userID)
		h.publish(userID, api.EventDelete, nil, old)
		return result{status: http.StatusNoContent}
	})
}

// write runs fn with the decoded body and applies Idempotency-Key semantics:
// a key already used for the same method and path replays the stored response,
// and the response of a successful write is stored under the key.
func (h *RecordsHandler) write(w http.ResponseWriter, r *http.Request, fn func(userID string, body map[string]any) result) {
	ctx := r.Context()
	userID, ok := GetUserID(ctx)
	if !ok {
		writeError(h.logger, w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	key := r.Header.Get(api.IdempotencyKeyHeader)
	if key != "" {
		stored, err := h.store.GetIdempotent(ctx, userID, key)
		switch {
		case err == nil:
			h.replay(w, r, key, stored)
			return
		case !errors.Is(err, storage.ErrIdempotencyNotFound):
			h.logger.Error("Failed to check idempotency key", "error", err)
			writeError(h.logger, w, http.StatusInternalServerError, "failed to check idempotency key")
			return
		}
	}

	body := map[string]any{}
	if r.Method != http.MethodDelete {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeError(h.logger, w, http.StatusBadRequest, "body must be a JSON object")
			return
		}
	}

	res := fn(userID, body)

	var encoded []byte
	if res.body != nil {
		var err error
		encoded, err = json.Marshal(res.body)
		if err != nil {
			h.logger.Error("Failed to encode response", "error", err)
			writeError(h.logger, w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	}

	if key != "" && res.status >= 200 && res.status < 300 {
		err := h.store.SaveIdempotent(ctx, userID, key, &storage.IdempotentResponse{
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: res.status,
			Body:       encoded,
		})
		if err != nil {
			// Запись уже выполнена; повтор без сохраненного ключа распознается по id
			h.logger.Error("Failed to save idempotency key", "error", err)
		}
	}

	writeRaw(w, res.status, encoded)
}

func (h *RecordsHandler) replay(w http.ResponseWriter, r *http.Request, key string, stored *storage.IdempotentResponse) {
	if stored.Method != r.Method || stored.Path != r.URL.Path {
		writeError(h.logger, w, http.StatusUnprocessableEntity, "Idempotency-Key was used for a different request")
		return
	}

	body := stored.Body
	if len(body) > 0 {
		var resp api.RecordResponse
		if err := json.Unmarshal(body, &resp); err == nil && resp.ID != "" {
			resp.Duplicate = true
			if b, err := json.Marshal(resp); err == nil {
				body = b
			}
		}
	}

	h.logger.Info("Idempotent write replayed", "method", r.Method, "path", r.URL.Path, "key", key)
	w.Header().Set(ReplayedHeader, "true")
	writeRaw(w, stored.StatusCode, body)
}

func (h *RecordsHandler) publish(ownerID, eventType string, rec, old *storage.Record) {
	if h.changes == nil {
		return
	}
	frame := api.ChangeFrame{EventType: eventType}
	if rec != nil {
		frame.Entity = rec.Entity
		frame.Record = recordMap(rec)
	}
	if old != nil {
		frame.Entity = old.Entity
		frame.OldRecord = recordMap(old)
	}
	h.changes.Publish(ownerID, frame)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	if len(body) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimSpace(body))
}

func errorBody(status int, msg string) api.ErrorResponse {
	return api.ErrorResponse{Error: http.StatusText(status), Message: msg}
}

func toResponse(rec *storage.Record) api.RecordResponse {
	return api.RecordResponse{
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
		ID:        rec.ID,
		Entity:    rec.Entity,
		OwnerID:   rec.OwnerID,
		Data:      rec.Data,
	}
}

// recordMap flattens a record into the row shape sent over the feed
func recordMap(rec *storage.Record) map[string]any {
	row := map[string]any{}
	if err := json.Unmarshal(rec.Data, &row); err != nil {
		row["data"] = string(rec.Data)
	}
	row["id"] = rec.ID
	row["owner_id"] = rec.OwnerID
	row["created_at"] = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	row["updated_at"] = rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return row
}

