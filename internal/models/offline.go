package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecordType определяет вариант полезной нагрузки офлайн-записи
type RecordType string

// RecordType константы для типов офлайн-записей
const (
	RecordTypeAppointment RecordType = "appointment"
	RecordTypeUserData    RecordType = "user_data"
	RecordTypeClinicInfo  RecordType = "clinic_info"
	RecordTypeChatMessage RecordType = "chat_message"
)

// RecordTypes lists every known record type in a stable order.
var RecordTypes = []RecordType{
	RecordTypeAppointment,
	RecordTypeUserData,
	RecordTypeClinicInfo,
	RecordTypeChatMessage,
}

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	switch t {
	case RecordTypeAppointment, RecordTypeUserData, RecordTypeClinicInfo, RecordTypeChatMessage:
		return true
	}
	return false
}

// Entity returns the remote entity (collection) name for records of type t
func (t RecordType) Entity() string {
	switch t {
	case RecordTypeAppointment:
		return "appointments"
	case RecordTypeChatMessage:
		return "chat_messages"
	default:
		return string(t)
	}
}

// Priority определяет приоритет синхронизации записи
type Priority string

// Priority константы
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// ErrUnknownRecordType is returned when a payload envelope carries a type
// that has no concrete schema.
var ErrUnknownRecordType = errors.New("unknown record type")

// Payload is the tagged union of offline record bodies.
// Each concrete variant reports the record type it belongs to.
type Payload interface {
	RecordType() RecordType
}

// AppointmentPayload представляет запись на прием в клинику
type AppointmentPayload struct {
	OwnerID string `json:"owner_id,omitempty"` // OwnerID идентификатор вызывающего (владельца записи)
	Name    string `json:"name"`               // Name имя пациента
	Phone   string `json:"phone"`              // Phone телефон пациента
	Service string `json:"service,omitempty"`  // Service услуга (процедура)
	Clinic  string `json:"clinic,omitempty"`   // Clinic клиника или филиал
	Date    string `json:"date"`               // Date дата в формате YYYY-MM-DD
	Time    string `json:"time"`               // Time время в формате HH:MM
	Notes   string `json:"notes,omitempty"`    // Notes заметки
	Source  string `json:"source,omitempty"`   // Source источник: "ui" или "agent"
}

// RecordType implements Payload.
func (AppointmentPayload) RecordType() RecordType { return RecordTypeAppointment }

// UserDataPayload представляет изменения профиля пользователя
type UserDataPayload struct {
	Fields map[string]string `json:"fields,omitempty"`
	UserID string            `json:"user_id"`
	Name   string            `json:"name,omitempty"`
	Email  string            `json:"email,omitempty"`
	Phone  string            `json:"phone,omitempty"`
}

// RecordType implements Payload.
func (UserDataPayload) RecordType() RecordType { return RecordTypeUserData }

// ClinicInfoPayload представляет сведения о клинике
type ClinicInfoPayload struct {
	ClinicID string   `json:"clinic_id"`
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Services []string `json:"services,omitempty"`
}

// RecordType implements Payload.
func (ClinicInfoPayload) RecordType() RecordType { return RecordTypeClinicInfo }

// ChatMessagePayload представляет сообщение диалога с агентом
type ChatMessagePayload struct {
	SentAt         time.Time `json:"sent_at"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id,omitempty"`
	Role           string    `json:"role"` // "user" или "assistant"
	Content        string    `json:"content"`
}

// RecordType implements Payload.
func (ChatMessagePayload) RecordType() RecordType { return RecordTypeChatMessage }

// DecodePayload decodes raw JSON into the concrete payload for t.
// Unknown types are rejected with ErrUnknownRecordType.
func DecodePayload(t RecordType, raw json.RawMessage) (Payload, error) {
	switch t {
	case RecordTypeAppointment:
		var p AppointmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return p, nil
	case RecordTypeUserData:
		var p UserDataPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return p, nil
	case RecordTypeClinicInfo:
		var p ClinicInfoPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return p, nil
	case RecordTypeChatMessage:
		var p ChatMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, t)
	}
}

// OfflineRecord представляет локально сохраненную запись, ожидающую
// синхронизации или уже синхронизированную (хранится для аудита).
type OfflineRecord struct {
	CreatedAt      time.Time  // CreatedAt время создания записи
	SyncedAt       *time.Time // SyncedAt время подтвержденной доставки
	Payload        Payload    // Payload тело записи, вариант определяется Type
	ID             string     // ID уникальный идентификатор (UUID)
	Type           RecordType // Type тип записи
	Priority       Priority   // Priority приоритет синхронизации
	IdempotencyKey string     // IdempotencyKey ключ дедупликации (может быть пустым)
	Synced         bool       // Synced true после подтвержденной доставки
}

type offlineRecordJSON struct {
	CreatedAt      time.Time       `json:"created_at"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty"`
	ID             string          `json:"id"`
	Type           RecordType      `json:"type"`
	Priority       Priority        `json:"priority"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Synced         bool            `json:"synced"`
}

// MarshalJSON encodes the record with its payload tagged by Type.
func (r OfflineRecord) MarshalJSON() ([]byte, error) {
	if r.Payload == nil {
		return nil, fmt.Errorf("record %s has no payload", r.ID)
	}
	if r.Payload.RecordType() != r.Type {
		return nil, fmt.Errorf("record %s: payload type %s does not match record type %s",
			r.ID, r.Payload.RecordType(), r.Type)
	}

	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return json.Marshal(offlineRecordJSON{
		CreatedAt:      r.CreatedAt,
		SyncedAt:       r.SyncedAt,
		ID:             r.ID,
		Type:           r.Type,
		Priority:       r.Priority,
		IdempotencyKey: r.IdempotencyKey,
		Payload:        payload,
		Synced:         r.Synced,
	})
}

// UnmarshalJSON decodes the record and dispatches the payload on Type.
func (r *OfflineRecord) UnmarshalJSON(data []byte) error {
	var raw offlineRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Type, raw.Payload)
	if err != nil {
		return err
	}

	*r = OfflineRecord{
		CreatedAt:      raw.CreatedAt,
		SyncedAt:       raw.SyncedAt,
		Payload:        payload,
		ID:             raw.ID,
		Type:           raw.Type,
		Priority:       raw.Priority,
		IdempotencyKey: raw.IdempotencyKey,
		Synced:         raw.Synced,
	}
	return nil
}

// NewOfflineRecord builds an unsynced record around payload.
func NewOfflineRecord(id string, payload Payload, priority Priority, now time.Time) *OfflineRecord {
	return &OfflineRecord{
		CreatedAt: now,
		Payload:   payload,
		ID:        id,
		Type:      payload.RecordType(),
		Priority:  priority,
	}
}
