package models

// ChangeKind тип изменения в ленте изменений сервера
type ChangeKind string

// ChangeKind константы
const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent представляет одно уведомление сервера об изменении сущности
type ChangeEvent struct {
	Record     map[string]any `json:"record,omitempty"`
	OldRecord  map[string]any `json:"old_record,omitempty"`
	EntityType string         `json:"entity_type"`
	Kind       ChangeKind     `json:"kind"`
}

// PresenceKind тип события присутствия
type PresenceKind string

// PresenceKind константы
const (
	PresenceSync  PresenceKind = "sync"
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent описывает изменение состава участников канала
type PresenceEvent struct {
	Presences map[string]map[string]any `json:"presences,omitempty"` // Presences key -> metadata
	Key       string                    `json:"key,omitempty"`
	Kind      PresenceKind              `json:"kind"`
}
