package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/clinicsync/internal/client/events"
	"github.com/iudanet/clinicsync/internal/client/queue"
	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/crypto"
	"github.com/iudanet/clinicsync/internal/models"
	"github.com/iudanet/clinicsync/internal/validation"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

//go:generate moq -out service_mock.go . Service

// ErrAlreadyCleanedUp is returned by CreateAppointment when the idempotency key
// belongs to a write that was delivered and has since been cleaned up
var ErrAlreadyCleanedUp = errors.New("write already delivered and cleaned up")

// Service defines the client write path and local data access
type Service interface {
	// CreateAppointment validates, persists and queues an appointment
	CreateAppointment(ctx context.Context, in AppointmentInput) (*models.OfflineRecord, error)

	// SaveOffline persists and queues a record of any type
	SaveOffline(ctx context.Context, payload models.Payload, priority models.Priority) (*models.OfflineRecord, error)

	// IngestAgentMessage turns agent text into at most one appointment record
	IngestAgentMessage(ctx context.Context, msg AgentMessage) (*IngestResult, error)

	// GetOfflineData returns local records, all types when t is empty
	GetOfflineData(ctx context.Context, t models.RecordType) ([]*models.OfflineRecord, error)

	// GetStorageStats returns collection statistics
	GetStorageStats(ctx context.Context) (*storage.Stats, error)

	// CleanupSynced removes synced records older than olderThan
	CleanupSynced(ctx context.Context, olderThan time.Duration) (int, error)
}

// Store is the part of the local store the write path needs
type Store interface {
	storage.OfflineStorage
	storage.StatsStorage
}

// Enqueuer accepts writes for delivery
type Enqueuer interface {
	Enqueue(ctx context.Context, in queue.NewItem) (*models.QueueItem, error)
}

// Parser extracts appointments from agent text
type Parser interface {
	Parse(text, knownPhone string) models.ParsedAppointment
}

// IdentityProvider returns the caller identity
type IdentityProvider interface {
	Identity(ctx context.Context) (*storage.AuthData, error)
}

// Publisher receives write notifications
type Publisher interface {
	Emit(topic string, payload any)
}

// AppointmentInput is an appointment write from the UI or the agent
type AppointmentInput struct {
	Name    string
	Phone   string
	Service string
	Clinic  string
	Date    string
	Time    string
	Notes   string
	Source  string // "ui" по умолчанию
	RawDate string // исходная дата, если ее не удалось нормализовать
	// IdempotencyKey защищает от повторного создания; пустой ключ заменяется ID записи
	IdempotencyKey string
}

// AgentMessage is one agent reply to ingest
type AgentMessage struct {
	Text        string
	DeliveryID  string // идентификатор доставки сообщения; повтор доставки не создает запись
	CallerPhone string
}

// IngestResult describes what ingesting an agent message did.
// A duplicate of a write that was already cleaned up has no Record.
type IngestResult struct {
	Record    *models.OfflineRecord    `json:"record,omitempty"`
	Parsed    models.ParsedAppointment `json:"parsed"`
	Duplicate bool                     `json:"duplicate"`
}

// WriteFailure is the payload of write.failed events
type WriteFailure struct {
	Error  error
	Record *models.OfflineRecord
	Type   models.RecordType
}

// appointmentBody is the body of the outbound create request
type appointmentBody struct {
	ID string `json:"id"`
	models.AppointmentPayload
}

// service handles the client write path
type service struct {
	store     Store
	enqueuer  Enqueuer
	parser    Parser
	identity  IdentityProvider
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the service
type Option func(*service)

// WithIdentity sets the source of the record owner
func WithIdentity(p IdentityProvider) Option {
	return func(s *service) { s.identity = p }
}

// WithPublisher sets the receiver of write.* events
func WithPublisher(p Publisher) Option {
	return func(s *service) { s.publisher = p }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new data service
func NewService(store Store, enqueuer Enqueuer, parser Parser, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		store:    store,
		enqueuer: enqueuer,
		parser:   parser,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAppointment validates and stores an appointment, then queues its delivery.
// An invalid appointment is rejected with *validation.Error and nothing is written.
func (s *service) CreateAppointment(ctx context.Context, in AppointmentInput) (*models.OfflineRecord, error) {
	record, duplicate, err := s.createAppointment(ctx, in)
	if err == nil && duplicate && record == nil {
		return nil, ErrAlreadyCleanedUp
	}
	return record, err
}

func (s *service) createAppointment(ctx context.Context, in AppointmentInput) (*models.OfflineRecord, bool, error) {
	owner, err := s.ownerID(ctx)
	if err != nil {
		return nil, false, err
	}

	source := in.Source
	if source == "" {
		source = "ui"
	}
	payload := models.AppointmentPayload{
		OwnerID: owner,
		Name:    in.Name,
		Phone:   in.Phone,
		Service: in.Service,
		Clinic:  in.Clinic,
		Date:    in.Date,
		Time:    in.Time,
		Notes:   in.Notes,
		Source:  source,
	}

	if err := validation.ValidateAppointment(payload, in.RawDate); err != nil {
		s.publishFailure(models.RecordTypeAppointment, nil, err)
		return nil, false, err
	}

	record := models.NewOfflineRecord(uuid.NewString(), payload, models.PriorityHigh, s.now())
	record.IdempotencyKey = in.IdempotencyKey
	if record.IdempotencyKey == "" {
		record.IdempotencyKey = record.ID
	}

	body, err := json.Marshal(appointmentBody{ID: record.ID, AppointmentPayload: payload})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal appointment: %w", err)
	}

	// Повторная запись с тем же ключом возвращает существующую
	existing, created, err := s.persist(ctx, record, body)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.logger.Info("Duplicate appointment write skipped", "idempotency_key", record.IdempotencyKey)
		return existing, true, nil
	}
	return record, false, nil
}

// SaveOffline stores any payload and queues a create request for it.
// Appointments go through CreateAppointment validation.
func (s *service) SaveOffline(ctx context.Context, payload models.Payload, priority models.Priority) (*models.OfflineRecord, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if !priority.Valid() {
		priority = models.PriorityMedium
	}

	if p, ok := payload.(models.AppointmentPayload); ok {
		return s.CreateAppointment(ctx, AppointmentInput{
			Name:    p.Name,
			Phone:   p.Phone,
			Service: p.Service,
			Clinic:  p.Clinic,
			Date:    p.Date,
			Time:    p.Time,
			Notes:   p.Notes,
			Source:  p.Source,
		})
	}

	record := models.NewOfflineRecord(uuid.NewString(), payload, priority, s.now())
	record.IdempotencyKey = record.ID

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	// Тело запроса: поля payload плюс id записи
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}
	fields["id"] = record.ID
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	if _, _, err := s.persist(ctx, record, body); err != nil {
		return nil, err
	}
	return record, nil
}

// persist saves record unless its idempotency key is taken, then enqueues its
// create request. created is false for a duplicate; existing is then the record
// holding the key (nil once it has been cleaned up).
// If enqueueing fails the record is removed again so a retry is not mistaken for a duplicate.
func (s *service) persist(ctx context.Context, record *models.OfflineRecord, body []byte) (existing *models.OfflineRecord, created bool, err error) {
	existing, created, err = s.store.PutRecordIfAbsent(ctx, record)
	if err != nil {
		s.publishFailure(record.Type, record, err)
		return nil, false, fmt.Errorf("failed to save record: %w", err)
	}
	if !created {
		return existing, false, nil
	}

	_, err = s.enqueuer.Enqueue(ctx, queue.NewItem{
		RecordID: record.ID,
		Endpoint: pkgapi.RecordsPath(record.Type.Entity()),
		Method:   http.MethodPost,
		Payload:  body,
		Headers:  map[string]string{pkgapi.IdempotencyKeyHeader: record.IdempotencyKey},
	})
	if err != nil {
		if delErr := s.store.DeleteRecord(ctx, record.ID); delErr != nil {
			s.logger.Error("Failed to roll back unqueued record", "record_id", record.ID, "error", delErr)
		}
		s.publishFailure(record.Type, record, err)
		return nil, false, fmt.Errorf("failed to queue record: %w", err)
	}

	s.logger.Info("Record saved offline",
		"record_id", record.ID, "type", record.Type, "priority", record.Priority)
	s.emit(events.TopicWriteSucceeded, record)
	return record, true, nil
}

// IngestAgentMessage parses text and creates the appointment it confirms.
// The idempotency key comes from DeliveryID, or from the normalized text and
// caller phone when the delivery has no ID.
func (s *service) IngestAgentMessage(ctx context.Context, msg AgentMessage) (*IngestResult, error) {
	parsed := s.parser.Parse(msg.Text, msg.CallerPhone)
	result := &IngestResult{Parsed: parsed}
	if !parsed.IsAppointment {
		s.logger.Debug("Agent message is not an appointment confirmation")
		return result, nil
	}

	key := crypto.IdempotencyKey("agent-delivery", msg.DeliveryID)
	if msg.DeliveryID == "" {
		key = crypto.IdempotencyKey("agent-text", crypto.NormalizeText(msg.Text), msg.CallerPhone)
	}

	record, duplicate, err := s.createAppointment(ctx, AppointmentInput{
		Name:           parsed.Name,
		Phone:          parsed.Phone,
		Service:        parsed.Service,
		Clinic:         parsed.Clinic,
		Date:           parsed.Date,
		Time:           parsed.Time,
		RawDate:        parsed.RawDate,
		Source:         "agent",
		IdempotencyKey: key,
	})
	if err != nil {
		return result, err
	}

	result.Record = record
	result.Duplicate = duplicate
	return result, nil
}

// GetOfflineData returns local records of type t, or all records when t is empty
func (s *service) GetOfflineData(ctx context.Context, t models.RecordType) ([]*models.OfflineRecord, error) {
	if t != "" && !t.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownRecordType, t)
	}
	records, err := s.store.GetRecords(ctx, storage.RecordFilter{Type: t})
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	return records, nil
}

// GetStorageStats returns local store statistics
func (s *service) GetStorageStats(ctx context.Context) (*storage.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage stats: %w", err)
	}
	return stats, nil
}

// CleanupSynced removes synced records created more than olderThan ago
func (s *service) CleanupSynced(ctx context.Context, olderThan time.Duration) (int, error) {
	removed, err := s.store.CleanupSyncedBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up synced records: %w", err)
	}
	if removed > 0 {
		s.logger.Info("Synced records removed", "count", removed)
	}
	return removed, nil
}

// ownerID returns the caller id; without a stored token records are unowned
func (s *service) ownerID(ctx context.Context) (string, error) {
	if s.identity == nil {
		return "", nil
	}
	auth, err := s.identity.Identity(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrStorage) {
			return "", fmt.Errorf("failed to read identity: %w", err)
		}
		s.logger.Debug("Writing without caller identity", "error", err)
		return "", nil
	}
	return auth.UserID, nil
}

func (s *service) publishFailure(t models.RecordType, record *models.OfflineRecord, err error) {
	s.logger.Warn("Write failed", "type", t, "error", err)
	s.emit(events.TopicWriteFailed, WriteFailure{Error: err, Record: record, Type: t})
}

func (s *service) emit(topic string, payload any) {
	if s.publisher != nil {
		s.publisher.Emit(topic, payload)
	}
}
