package boltdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/models"
)

var baseTime = time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)

// createTestRecord создает тестовую запись о приеме
func createTestRecord(id string, offset time.Duration) *models.OfflineRecord {
	return models.NewOfflineRecord(id, models.AppointmentPayload{
		OwnerID: "user-1",
		Name:    "Paciente " + id,
		Phone:   "+5511999990000",
		Date:    "2024-08-15",
		Time:    "14:00",
	}, models.PriorityHigh, baseTime.Add(offset))
}

func TestStorage_PutGetRecord_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	record := createTestRecord("rec-1", 0)
	require.NoError(t, store.PutRecord(ctx, record))

	got, err := store.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, record.Payload, got.Payload)
	assert.Equal(t, record.Type, got.Type)
	assert.Equal(t, record.Priority, got.Priority)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
	assert.False(t, got.Synced)
}

func TestStorage_GetRecord_NotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	assert.NotErrorIs(t, err, storage.ErrStorage)
}

func TestStorage_PutRecord_Validation(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	tests := []struct {
		record *models.OfflineRecord
		name   string
	}{
		{name: "empty id", record: &models.OfflineRecord{Type: models.RecordTypeAppointment, Payload: models.AppointmentPayload{}}},
		{name: "unknown type", record: &models.OfflineRecord{ID: "x", Type: "invoice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.PutRecord(ctx, tt.record)
			require.Error(t, err)
			assert.ErrorIs(t, err, storage.ErrStorage)
		})
	}
}

func TestStorage_GetRecords_Filters(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	// Записи разных типов в обратном порядке вставки
	chat := models.NewOfflineRecord("chat-1", models.ChatMessagePayload{
		ConversationID: "conv-1",
		Role:           "user",
		Content:        "oi",
	}, models.PriorityLow, baseTime.Add(3*time.Minute))
	require.NoError(t, store.PutRecord(ctx, chat))
	require.NoError(t, store.PutRecord(ctx, createTestRecord("rec-2", 2*time.Minute)))
	require.NoError(t, store.PutRecord(ctx, createTestRecord("rec-1", time.Minute)))
	require.NoError(t, store.MarkSynced(ctx, "rec-2", baseTime.Add(time.Hour)))

	all, err := store.GetRecords(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"rec-1", "rec-2", "chat-1"}, recordIDs(all))

	appointments, err := store.GetRecords(ctx, storage.RecordFilter{Type: models.RecordTypeAppointment})
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1", "rec-2"}, recordIDs(appointments))

	synced := true
	syncedRecords, err := store.GetRecords(ctx, storage.RecordFilter{Synced: &synced})
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-2"}, recordIDs(syncedRecords))

	unsynced := false
	pending, err := store.GetRecords(ctx, storage.RecordFilter{Type: models.RecordTypeAppointment, Synced: &unsynced})
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1"}, recordIDs(pending))

	older, err := store.GetRecords(ctx, storage.RecordFilter{CreatedBefore: baseTime.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1"}, recordIDs(older))
}

func TestStorage_MarkSynced(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.PutRecord(ctx, createTestRecord("rec-1", 0)))

	at := baseTime.Add(time.Hour)
	require.NoError(t, store.MarkSynced(ctx, "rec-1", at))
	// Повторная отметка ничего не меняет
	require.NoError(t, store.MarkSynced(ctx, "rec-1", at.Add(time.Hour)))

	got, err := store.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, got.Synced)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, at.Equal(*got.SyncedAt))

	// Старый ключ индекса synced=0 удален
	unsynced := false
	pending, err := store.GetRecords(ctx, storage.RecordFilter{Synced: &unsynced})
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, store.MarkSynced(ctx, "missing", at), storage.ErrRecordNotFound)
}

func TestStorage_FindRecordByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	record := createTestRecord("rec-1", 0)
	record.IdempotencyKey = "delivery-42"
	require.NoError(t, store.PutRecord(ctx, record))

	got, err := store.FindRecordByIdempotencyKey(ctx, "delivery-42")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)

	_, err = store.FindRecordByIdempotencyKey(ctx, "other")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	_, err = store.FindRecordByIdempotencyKey(ctx, "")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	require.NoError(t, store.DeleteRecord(ctx, "rec-1"))
	_, err = store.FindRecordByIdempotencyKey(ctx, "delivery-42")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_PutRecordIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	first := createTestRecord("rec-1", 0)
	first.IdempotencyKey = "delivery-42"
	existing, created, err := store.PutRecordIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, existing)

	// Тот же ключ: ничего не пишется, возвращается первая запись
	second := createTestRecord("rec-2", time.Minute)
	second.IdempotencyKey = "delivery-42"
	existing, created, err = store.PutRecordIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, existing)
	assert.Equal(t, "rec-1", existing.ID)

	_, err = store.GetRecord(ctx, "rec-2")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	noKey := createTestRecord("rec-3", 0)
	_, _, err = store.PutRecordIfAbsent(ctx, noKey)
	assert.ErrorIs(t, err, storage.ErrStorage)
}

func TestStorage_PutRecordIfAbsent_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	const writers = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record := createTestRecord(fmt.Sprintf("rec-%d", i), 0)
			record.IdempotencyKey = "delivery-42"
			_, ok, err := store.PutRecordIfAbsent(ctx, record)
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	all, err := store.GetRecords(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStorage_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.PutRecord(ctx, createTestRecord("rec-1", 0)))
	require.NoError(t, store.DeleteRecord(ctx, "rec-1"))

	_, err := store.GetRecord(ctx, "rec-1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	all, err := store.GetRecords(ctx, storage.RecordFilter{Type: models.RecordTypeAppointment})
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, store.DeleteRecord(ctx, "rec-1"), storage.ErrRecordNotFound)
}

func TestStorage_CleanupSyncedBefore(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.PutRecord(ctx, createTestRecord("old-synced", 0)))
	require.NoError(t, store.PutRecord(ctx, createTestRecord("old-pending", time.Minute)))
	require.NoError(t, store.PutRecord(ctx, createTestRecord("new-synced", 48*time.Hour)))
	require.NoError(t, store.MarkSynced(ctx, "old-synced", baseTime))
	require.NoError(t, store.MarkSynced(ctx, "new-synced", baseTime))

	removed, err := store.CleanupSyncedBefore(ctx, baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// Несинхронизированные записи не удаляются никогда
	remaining, err := store.GetRecords(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old-pending", "new-synced"}, recordIDs(remaining))
}

func TestStorage_CleanupSyncedBefore_KeepsIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	record := createTestRecord("rec-1", 0)
	record.IdempotencyKey = "delivery-42"
	require.NoError(t, store.PutRecord(ctx, record))
	require.NoError(t, store.MarkSynced(ctx, "rec-1", baseTime))

	removed, err := store.CleanupSyncedBefore(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.FindRecordByIdempotencyKey(ctx, "delivery-42")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	// Повторная доставка после очистки не создает новую запись
	again := createTestRecord("rec-2", time.Hour)
	again.IdempotencyKey = "delivery-42"
	existing, created, err := store.PutRecordIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, existing)

	all, err := store.GetRecords(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func recordIDs(records []*models.OfflineRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
