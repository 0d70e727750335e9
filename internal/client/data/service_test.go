package data

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/client/events"
	"github.com/iudanet/clinicsync/internal/client/extractor"
	"github.com/iudanet/clinicsync/internal/client/queue"
	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/client/storage/boltdb"
	"github.com/iudanet/clinicsync/internal/models"
	"github.com/iudanet/clinicsync/internal/validation"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

var fixedNow = func() time.Time { return time.Date(2024, 8, 10, 9, 0, 0, 0, time.UTC) }

const confirmation = "Agendamento confirmado para 15/08/2024 às 14:00. Nome: Maria Silva"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store     *boltdb.Storage
	processor *queue.Processor
	bus       *events.Bus
	svc       Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	processor := queue.NewProcessor(store, &queue.DelivererMock{}, testLogger())
	bus := events.NewBus()
	opts = append([]Option{WithPublisher(bus), WithClock(fixedNow)}, opts...)

	return &testEnv{
		store:     store,
		processor: processor,
		bus:       bus,
		svc:       NewService(store, processor, extractor.New(extractor.WithClock(fixedNow)), testLogger(), opts...),
	}
}

// enqueuerFunc адаптирует функцию к Enqueuer
type enqueuerFunc func(ctx context.Context, in queue.NewItem) (*models.QueueItem, error)

func (f enqueuerFunc) Enqueue(ctx context.Context, in queue.NewItem) (*models.QueueItem, error) {
	return f(ctx, in)
}

type identityFunc func(ctx context.Context) (*storage.AuthData, error)

func (f identityFunc) Identity(ctx context.Context) (*storage.AuthData, error) { return f(ctx) }

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, WithIdentity(identityFunc(func(ctx context.Context) (*storage.AuthData, error) {
		return &storage.AuthData{UserID: "user-1"}, nil
	})))

	var succeeded []events.Event
	env.bus.Subscribe(events.TopicWriteSucceeded, func(ev events.Event) { succeeded = append(succeeded, ev) })

	record, err := env.svc.CreateAppointment(ctx, AppointmentInput{
		Name:   "Maria Silva",
		Phone:  "+5511999990000",
		Clinic: "Centro",
		Date:   "2024-08-15",
		Time:   "14:00",
	})
	require.NoError(t, err)

	assert.Equal(t, models.RecordTypeAppointment, record.Type)
	assert.Equal(t, models.PriorityHigh, record.Priority)
	assert.False(t, record.Synced)
	assert.Equal(t, record.ID, record.IdempotencyKey)
	payload := record.Payload.(models.AppointmentPayload)
	assert.Equal(t, "user-1", payload.OwnerID)
	assert.Equal(t, "ui", payload.Source)

	// Запись сохранена локально
	stored, err := env.store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Payload, stored.Payload)

	// И поставлена в очередь
	pending, err := env.processor.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	item := pending[0]
	assert.Equal(t, record.ID, item.RecordID)
	assert.Equal(t, http.MethodPost, item.Method)
	assert.Equal(t, "/api/v1/records/appointments", item.Endpoint)
	assert.Equal(t, record.IdempotencyKey, item.Headers[pkgapi.IdempotencyKeyHeader])

	var body map[string]any
	require.NoError(t, json.Unmarshal(item.Payload, &body))
	assert.Equal(t, record.ID, body["id"])
	assert.Equal(t, "2024-08-15", body["date"])
	assert.Equal(t, "14:00", body["time"])

	require.Len(t, succeeded, 1)
	assert.Equal(t, record, succeeded[0].Payload)
}

func TestCreateAppointment_ValidationRejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		in    AppointmentInput
		field string
	}{
		{name: "missing date", in: AppointmentInput{Name: "A", Time: "14:00"}, field: "date"},
		{name: "missing time", in: AppointmentInput{Name: "A", Date: "2024-08-15"}, field: "time"},
		{name: "malformed date", in: AppointmentInput{Date: "15/08/2024", Time: "14:00"}, field: "date"},
		{name: "malformed time", in: AppointmentInput{Date: "2024-08-15", Time: "25:00"}, field: "time"},
		{name: "bad phone", in: AppointmentInput{Date: "2024-08-15", Time: "14:00", Phone: "abc"}, field: "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			var failed []events.Event
			env.bus.Subscribe(events.TopicWriteFailed, func(ev events.Event) { failed = append(failed, ev) })

			record, err := env.svc.CreateAppointment(ctx, tt.in)
			assert.Nil(t, record)
			require.ErrorIs(t, err, validation.ErrValidation)

			var verr *validation.Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)

			// Ничего не сохранено
			records, err := env.svc.GetOfflineData(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, records)
			pending, err := env.processor.Pending(ctx)
			require.NoError(t, err)
			assert.Empty(t, pending)

			assert.Len(t, failed, 1)
		})
	}
}

func TestIngestAgentMessage_CreatesAppointment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.svc.IngestAgentMessage(ctx, AgentMessage{
		Text:        confirmation,
		DeliveryID:  "msg-1",
		CallerPhone: "+5511999990000",
	})
	require.NoError(t, err)

	assert.True(t, result.Parsed.IsAppointment)
	assert.False(t, result.Duplicate)
	require.NotNil(t, result.Record)

	payload := result.Record.Payload.(models.AppointmentPayload)
	assert.Equal(t, "Maria Silva", payload.Name)
	assert.Equal(t, "+5511999990000", payload.Phone)
	assert.Equal(t, "2024-08-15", payload.Date)
	assert.Equal(t, "14:00", payload.Time)
	assert.Equal(t, "agent", payload.Source)
	assert.NotEqual(t, result.Record.ID, result.Record.IdempotencyKey)
}

func TestIngestAgentMessage_Idempotent(t *testing.T) {
	ctx := context.Background()

	t.Run("same delivery id", func(t *testing.T) {
		env := newTestEnv(t)
		msg := AgentMessage{Text: confirmation, DeliveryID: "msg-1"}

		first, err := env.svc.IngestAgentMessage(ctx, msg)
		require.NoError(t, err)
		second, err := env.svc.IngestAgentMessage(ctx, msg)
		require.NoError(t, err)

		assert.True(t, second.Duplicate)
		assert.Equal(t, first.Record.ID, second.Record.ID)

		records, err := env.svc.GetOfflineData(ctx, models.RecordTypeAppointment)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		pending, err := env.processor.Pending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("no delivery id uses normalized text", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.IngestAgentMessage(ctx, AgentMessage{Text: confirmation})
		require.NoError(t, err)
		// Отличается только регистром и пробелами
		second, err := env.svc.IngestAgentMessage(ctx, AgentMessage{
			Text: "  AGENDAMENTO confirmado  para 15/08/2024 às 14:00.\nNome: Maria Silva",
		})
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
	})

	t.Run("different deliveries create separate records", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.IngestAgentMessage(ctx, AgentMessage{Text: confirmation, DeliveryID: "msg-1"})
		require.NoError(t, err)
		second, err := env.svc.IngestAgentMessage(ctx, AgentMessage{Text: confirmation, DeliveryID: "msg-2"})
		require.NoError(t, err)
		assert.False(t, second.Duplicate)

		records, err := env.svc.GetOfflineData(ctx, "")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}

func TestIngestAgentMessage_ConcurrentSameDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	msg := AgentMessage{Text: confirmation, DeliveryID: "msg-1"}

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.svc.IngestAgentMessage(ctx, msg)
			assert.NoError(t, err)
			if err == nil && !result.Duplicate {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	records, err := env.svc.GetOfflineData(ctx, models.RecordTypeAppointment)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	pending, err := env.processor.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIngestAgentMessage_RedeliveryAfterCleanup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	msg := AgentMessage{Text: confirmation, DeliveryID: "msg-1"}

	first, err := env.svc.IngestAgentMessage(ctx, msg)
	require.NoError(t, err)
	require.NoError(t, env.store.MarkSynced(ctx, first.Record.ID, fixedNow()))
	removed, err := env.svc.CleanupSynced(ctx, -time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	// Повторная доставка вебхука после очистки распознается как дубликат
	again, err := env.svc.IngestAgentMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Nil(t, again.Record)

	records, err := env.svc.GetOfflineData(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = env.svc.CreateAppointment(ctx, AppointmentInput{
		Date: "2024-08-15", Time: "14:00", IdempotencyKey: first.Record.IdempotencyKey,
	})
	assert.ErrorIs(t, err, ErrAlreadyCleanedUp)
}

func TestIngestAgentMessage_NotAppointment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.svc.IngestAgentMessage(ctx, AgentMessage{Text: "Olá, tudo bem?"})
	require.NoError(t, err)
	assert.False(t, result.Parsed.IsAppointment)
	assert.Nil(t, result.Record)

	records, err := env.svc.GetOfflineData(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIngestAgentMessage_MissingDateTime(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.svc.IngestAgentMessage(ctx, AgentMessage{Text: "Consulta confirmada! Nome: João Souza"})
	require.ErrorIs(t, err, validation.ErrValidation)
	assert.True(t, result.Parsed.IsAppointment)
	assert.Nil(t, result.Record)

	records, err := env.svc.GetOfflineData(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records)
	pending, err := env.processor.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSaveOffline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	record, err := env.svc.SaveOffline(ctx, models.ChatMessagePayload{
		ConversationID: "conv-1",
		Role:           "user",
		Content:        "Oi",
		SentAt:         fixedNow(),
	}, models.PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, models.RecordTypeChatMessage, record.Type)
	assert.Equal(t, models.PriorityLow, record.Priority)

	pending, err := env.processor.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/api/v1/records/chat_messages", pending[0].Endpoint)

	var body map[string]any
	require.NoError(t, json.Unmarshal(pending[0].Payload, &body))
	assert.Equal(t, record.ID, body["id"])
	assert.Equal(t, "conv-1", body["conversation_id"])

	// Запись на прием проходит валидацию
	_, err = env.svc.SaveOffline(ctx, models.AppointmentPayload{Name: "A"}, models.PriorityHigh)
	assert.ErrorIs(t, err, validation.ErrValidation)
}

func TestCreateAppointment_EnqueueFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	enqueueErr := errors.New("queue is full")
	svc := NewService(store, enqueuerFunc(func(ctx context.Context, in queue.NewItem) (*models.QueueItem, error) {
		return nil, enqueueErr
	}), extractor.New(), testLogger())

	_, err = svc.CreateAppointment(ctx, AppointmentInput{Date: "2024-08-15", Time: "14:00"})
	require.ErrorIs(t, err, enqueueErr)

	records, err := svc.GetOfflineData(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStorageErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	_, err := env.svc.CreateAppointment(ctx, AppointmentInput{Date: "2024-08-15", Time: "14:00"})
	assert.ErrorIs(t, err, storage.ErrStorage)

	_, err = env.svc.IngestAgentMessage(ctx, AgentMessage{Text: confirmation, DeliveryID: "msg-1"})
	assert.ErrorIs(t, err, storage.ErrStorage)

	_, err = env.svc.GetOfflineData(ctx, "")
	assert.ErrorIs(t, err, storage.ErrStorage)

	_, err = env.svc.GetStorageStats(ctx)
	assert.ErrorIs(t, err, storage.ErrStorage)

	_, err = env.svc.CleanupSynced(ctx, time.Hour)
	assert.ErrorIs(t, err, storage.ErrStorage)
}

func TestCleanupSynced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	record, err := env.svc.CreateAppointment(ctx, AppointmentInput{Date: "2024-08-15", Time: "14:00"})
	require.NoError(t, err)

	// Несинхронизированная запись не удаляется
	removed, err := env.svc.CleanupSynced(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.NoError(t, env.store.MarkSynced(ctx, record.ID, fixedNow()))
	removed, err = env.svc.CleanupSynced(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := env.svc.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
	assert.Equal(t, 1, stats.QueueItems)
}

func TestGetOfflineData_UnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetOfflineData(context.Background(), "invoice")
	assert.ErrorIs(t, err, models.ErrUnknownRecordType)
}
