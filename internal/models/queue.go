package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultMaxRetries is the retry budget applied when an item does not set one.
const DefaultMaxRetries = 3

// QueueState состояние элемента очереди исходящих запросов
type QueueState string

// Pending → InFlight → Delivered
// Pending → InFlight → Retryable → InFlight → ... → DeadLettered
const (
	QueueStatePending      QueueState = "pending"
	QueueStateInFlight     QueueState = "in_flight"
	QueueStateRetryable    QueueState = "retryable"
	QueueStateDelivered    QueueState = "delivered"
	QueueStateDeadLettered QueueState = "dead_lettered"
)

// ErrInvalidTransition is returned for a state change the queue state machine forbids.
var ErrInvalidTransition = errors.New("invalid queue state transition")

var queueTransitions = map[QueueState][]QueueState{
	QueueStatePending:      {QueueStateInFlight},
	QueueStateRetryable:    {QueueStateInFlight, QueueStateDeadLettered},
	QueueStateInFlight:     {QueueStateDelivered, QueueStateRetryable, QueueStateDeadLettered},
	QueueStateDeadLettered: {QueueStatePending},
	QueueStateDelivered:    nil,
}

// QueueItem представляет исходящий запрос, ожидающий доставки на сервер
type QueueItem struct {
	EnqueuedAt time.Time         `json:"enqueued_at"`          // EnqueuedAt время постановки в очередь
	UpdatedAt  time.Time         `json:"updated_at"`           // UpdatedAt время последнего изменения
	Headers    map[string]string `json:"headers,omitempty"`    // Headers дополнительные заголовки запроса
	ID         string            `json:"id"`                   // ID уникальный идентификатор (UUID)
	RecordID   string            `json:"record_id,omitempty"`  // RecordID связанная офлайн-запись (если есть)
	Endpoint   string            `json:"endpoint"`             // Endpoint путь запроса
	Method     string            `json:"method"`               // Method POST, PUT, PATCH или DELETE
	State      QueueState        `json:"state"`                // State состояние в машине состояний
	LastError  string            `json:"last_error,omitempty"` // LastError текст последней ошибки доставки
	Payload    json.RawMessage   `json:"payload,omitempty"`    // Payload тело запроса
	Seq        uint64            `json:"seq"`                  // Seq порядковый номер (FIFO)
	RetryCount int               `json:"retry_count"`          // RetryCount число неудачных попыток
	MaxRetries int               `json:"max_retries"`          // MaxRetries бюджет повторов
}

// ValidMethod reports whether m is an allowed outbound method.
func ValidMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// HasBody reports whether the request for this item carries a body.
func (q *QueueItem) HasBody() bool {
	return q.Method != http.MethodDelete
}

// Exhausted reports whether the retry budget is spent.
func (q *QueueItem) Exhausted() bool {
	return q.RetryCount >= q.MaxRetries
}

// Eligible reports whether a drain pass should attempt this item.
func (q *QueueItem) Eligible() bool {
	return q.State != QueueStateDeadLettered && q.State != QueueStateDelivered && !q.Exhausted()
}

// Transition moves the item to state to, enforcing the queue state machine.
func (q *QueueItem) Transition(to QueueState) error {
	for _, allowed := range queueTransitions[q.State] {
		if allowed == to {
			q.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.State, to)
}
