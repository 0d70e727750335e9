package api

import (
	"fmt"
	"strings"
)

// EntityQueryParam and FilterQueryParam are the change feed query parameters
const (
	EntityQueryParam = "entity"
	FilterQueryParam = "filter"
)

// FormatFilter encodes an equality filter, e.g. "owner_id=eq.42"
func FormatFilter(column, value string) string {
	return column + "=eq." + value
}

// ParseFilter decodes a filter produced by FormatFilter
func ParseFilter(s string) (column, value string, err error) {
	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return "", "", fmt.Errorf("invalid filter %q", s)
	}
	value, ok = strings.CutPrefix(rest, "eq.")
	if !ok {
		return "", "", fmt.Errorf("unsupported filter operator in %q", s)
	}
	return column, value, nil
}

// Change event types sent over the feed
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
	EventError  = "error"
)

// ChangeFrame is one message of the change feed websocket
type ChangeFrame struct {
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
	EventType string         `json:"event_type"`
	Entity    string         `json:"entity"`
	Message   string         `json:"message,omitempty"` // только для event_type=error
}

// Presence frame types
const (
	PresenceTrack = "track" // клиент -> сервер
	PresenceSync  = "sync"
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

// PresenceFrame is one message of the presence websocket.
// Sync frames carry the full member map; join and leave carry the affected key.
type PresenceFrame struct {
	Meta      map[string]any            `json:"meta,omitempty"`
	Presences map[string]map[string]any `json:"presences,omitempty"`
	Type      string                    `json:"type"`
	Key       string                    `json:"key,omitempty"`
}
