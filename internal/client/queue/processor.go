// Package queue delivers locally queued writes to the remote service with
// at-least-once semantics, bounded retries and a dead-letter state.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/iudanet/clinicsync/internal/client/events"
	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/metrics"
	"github.com/iudanet/clinicsync/internal/models"
)

// Defaults
const (
	DefaultInterval        = 30 * time.Second
	DefaultDeliveryTimeout = 15 * time.Second
)

var (
	// ErrInvalidItem is returned by Enqueue for an item that can never be delivered
	ErrInvalidItem = errors.New("invalid queue item")

	// ErrNotRequeueable is returned by Requeue for an item that is still live
	ErrNotRequeueable = errors.New("queue item is not dead-lettered or exhausted")
)

// ExhaustionPolicy decides what happens to an item whose retry budget is spent
type ExhaustionPolicy int

const (
	// PolicyDeadLetter moves the item to the dead_lettered state and publishes an event
	PolicyDeadLetter ExhaustionPolicy = iota
	// PolicyRetainExhausted leaves the item queued with RetryCount == MaxRetries.
	// Such items are never attempted again and are not reported.
	PolicyRetainExhausted
)

func (p ExhaustionPolicy) String() string {
	if p == PolicyRetainExhausted {
		return "retain"
	}
	return "dead_letter"
}

//go:generate moq -out deliverer_mock.go . Deliverer

// Deliverer performs one remote request for an item
type Deliverer interface {
	Deliver(ctx context.Context, item *models.QueueItem) error
}

// Store is the part of the local store the processor needs
type Store interface {
	storage.QueueStorage
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

// OnlineChecker reports current connectivity
type OnlineChecker interface {
	IsOnline() bool
}

// Publisher receives processor notifications
type Publisher interface {
	Emit(topic string, payload any)
}

// NewItem describes a write to enqueue
type NewItem struct {
	Headers    map[string]string
	RecordID   string
	Endpoint   string
	Method     string
	Payload    json.RawMessage
	MaxRetries int // 0 означает models.DefaultMaxRetries
}

// DrainResult summarizes one drain pass
type DrainResult struct {
	Attempted    int  `json:"attempted"`
	Delivered    int  `json:"delivered"`
	Failed       int  `json:"failed"`
	DeadLettered int  `json:"dead_lettered"`
	Skipped      bool `json:"skipped"` // другой проход уже выполняется
}

// DeliveryEvent is the payload of queue.* events
type DeliveryEvent struct {
	Item  *models.QueueItem
	Error string
}

// Processor drains the sync queue.
// At most one drain pass runs at a time; a concurrent Drain returns Skipped.
type Processor struct {
	store     Store
	deliverer Deliverer
	online    OnlineChecker
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	cron      *cron.Cron
	baseCtx   context.Context
	cancel    context.CancelFunc

	interval        time.Duration
	deliveryTimeout time.Duration
	maxRetries      int
	policy          ExhaustionPolicy

	wg       sync.WaitGroup
	mu       sync.Mutex
	draining atomic.Bool
}

// Option configures Processor
type Option func(*Processor)

// WithInterval sets the periodic drain interval
func WithInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDeliveryTimeout bounds a single delivery attempt
func WithDeliveryTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.deliveryTimeout = d
		}
	}
}

// WithMaxRetries sets the default retry budget for new items
func WithMaxRetries(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithPolicy sets the exhaustion policy
func WithPolicy(policy ExhaustionPolicy) Option {
	return func(p *Processor) { p.policy = policy }
}

// WithOnlineChecker gates periodic drains on connectivity
func WithOnlineChecker(oc OnlineChecker) Option {
	return func(p *Processor) { p.online = oc }
}

// WithPublisher sets the event sink
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a queue processor
func NewProcessor(store Store, deliverer Deliverer, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:           store,
		deliverer:       deliverer,
		logger:          logger,
		now:             time.Now,
		baseCtx:         context.Background(),
		interval:        DefaultInterval,
		deliveryTimeout: DefaultDeliveryTimeout,
		maxRetries:      models.DefaultMaxRetries,
		policy:          PolicyDeadLetter,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue persists a new pending item with a fresh ID and zero retry count
func (p *Processor) Enqueue(ctx context.Context, in NewItem) (*models.QueueItem, error) {
	if in.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is empty", ErrInvalidItem)
	}
	if !models.ValidMethod(in.Method) {
		return nil, fmt.Errorf("%w: method %q", ErrInvalidItem, in.Method)
	}

	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = p.maxRetries
	}
	now := p.now()

	item := &models.QueueItem{
		ID:         uuid.NewString(),
		RecordID:   in.RecordID,
		Endpoint:   in.Endpoint,
		Method:     in.Method,
		Payload:    in.Payload,
		Headers:    in.Headers,
		State:      models.QueueStatePending,
		MaxRetries: maxRetries,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}

	if err := p.store.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to enqueue item: %w", err)
	}

	p.logger.Debug("Item enqueued", "item_id", item.ID, "method", item.Method, "endpoint", item.Endpoint)
	return item, nil
}

// Drain attempts every eligible item once, in FIFO order.
// The eligible set is fixed at the start of the pass: items enqueued while
// it runs wait for the next pass. Delivery failures are absorbed into item
// state; only storage failures are returned.
func (p *Processor) Drain(ctx context.Context) (*DrainResult, error) {
	if !p.draining.CompareAndSwap(false, true) {
		metrics.ObserveDrain(true)
		p.logger.Debug("Drain already in progress, skipping")
		return &DrainResult{Skipped: true}, nil
	}
	defer p.draining.Store(false)
	metrics.ObserveDrain(false)

	result := &DrainResult{}

	if err := p.recoverInFlight(ctx); err != nil {
		return result, err
	}

	items, err := p.store.ListQueue(ctx, storage.QueueFilter{
		States: []models.QueueState{models.QueueStatePending, models.QueueStateRetryable},
	})
	if err != nil {
		return result, fmt.Errorf("failed to list queue: %w", err)
	}

	var batch []*models.QueueItem
	for _, item := range items {
		if item.Eligible() {
			batch = append(batch, item)
		}
	}
	if len(batch) == 0 {
		return result, nil
	}

	p.logger.Info("Draining sync queue", "items", len(batch))

	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.attempt(ctx, item, result); err != nil {
			return result, err
		}
	}

	p.logger.Info("Drain completed",
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"dead_lettered", result.DeadLettered,
	)

	if remaining, err := p.store.ListQueue(ctx, storage.QueueFilter{}); err == nil {
		metrics.SetQueueDepth(len(remaining))
	}

	return result, nil
}

// recoverInFlight returns items left in_flight by an interrupted process to retryable.
// The outcome of their last attempt is unknown, so it is not counted.
func (p *Processor) recoverInFlight(ctx context.Context) error {
	stuck, err := p.store.ListQueue(ctx, storage.QueueFilter{
		States: []models.QueueState{models.QueueStateInFlight},
	})
	if err != nil {
		return fmt.Errorf("failed to list in-flight items: %w", err)
	}
	for _, item := range stuck {
		if err := item.Transition(models.QueueStateRetryable); err != nil {
			return err
		}
		if err := p.store.UpdateQueueItem(ctx, item); err != nil {
			return fmt.Errorf("failed to recover item %s: %w", item.ID, err)
		}
		p.logger.Warn("Recovered interrupted delivery", "item_id", item.ID)
	}
	return nil
}

// attempt delivers one item and records the outcome
func (p *Processor) attempt(ctx context.Context, item *models.QueueItem, result *DrainResult) error {
	if err := item.Transition(models.QueueStateInFlight); err != nil {
		return err
	}
	if err := p.store.UpdateQueueItem(ctx, item); err != nil {
		return fmt.Errorf("failed to mark item %s in flight: %w", item.ID, err)
	}

	result.Attempted++
	start := time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
	deliveryErr := p.deliverer.Deliver(attemptCtx, item)
	cancel()

	if deliveryErr == nil {
		return p.complete(ctx, item, result, start)
	}
	return p.fail(ctx, item, deliveryErr, result, start)
}

func (p *Processor) complete(ctx context.Context, item *models.QueueItem, result *DrainResult, start time.Time) error {
	// Сначала отмечаем запись: если удаление не удастся, элемент будет доставлен повторно
	if item.RecordID != "" {
		err := p.store.MarkSynced(ctx, item.RecordID, p.now())
		switch {
		case errors.Is(err, storage.ErrRecordNotFound):
			p.logger.Warn("Delivered item references missing record", "item_id", item.ID, "record_id", item.RecordID)
		case err != nil:
			return fmt.Errorf("failed to mark record %s synced: %w", item.RecordID, err)
		}
	}

	if err := p.store.DeleteQueueItem(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to delete delivered item %s: %w", item.ID, err)
	}

	_ = item.Transition(models.QueueStateDelivered)
	result.Delivered++
	metrics.ObserveDelivery(metrics.ResultDelivered, start)
	p.logger.Debug("Item delivered", "item_id", item.ID, "record_id", item.RecordID)
	p.emit(events.TopicQueueDelivered, DeliveryEvent{Item: item})
	return nil
}

func (p *Processor) fail(ctx context.Context, item *models.QueueItem, deliveryErr error, result *DrainResult, start time.Time) error {
	item.RetryCount++
	item.LastError = deliveryErr.Error()

	next := models.QueueStateRetryable
	if item.Exhausted() && p.policy == PolicyDeadLetter {
		next = models.QueueStateDeadLettered
	}
	if err := item.Transition(next); err != nil {
		return err
	}
	if err := p.store.UpdateQueueItem(ctx, item); err != nil {
		return fmt.Errorf("failed to record delivery failure for %s: %w", item.ID, err)
	}

	result.Failed++
	ev := DeliveryEvent{Item: item, Error: item.LastError}

	if item.State == models.QueueStateDeadLettered {
		result.DeadLettered++
		metrics.ObserveDelivery(metrics.ResultDeadLettered, start)
		p.logger.Error("Item dead-lettered",
			"item_id", item.ID,
			"retry_count", item.RetryCount,
			"error", deliveryErr,
		)
		p.emit(events.TopicQueueFailed, ev)
		p.emit(events.TopicQueueDeadLettered, ev)
		return nil
	}

	metrics.ObserveDelivery(metrics.ResultFailed, start)
	p.logger.Warn("Delivery failed",
		"item_id", item.ID,
		"retry_count", item.RetryCount,
		"max_retries", item.MaxRetries,
		"error", deliveryErr,
	)
	p.emit(events.TopicQueueFailed, ev)
	return nil
}

func (p *Processor) emit(topic string, payload any) {
	if p.publisher != nil {
		p.publisher.Emit(topic, payload)
	}
}

// Pending returns every queued item that is not dead-lettered, in FIFO order
func (p *Processor) Pending(ctx context.Context) ([]*models.QueueItem, error) {
	items, err := p.store.ListQueue(ctx, storage.QueueFilter{
		States: []models.QueueState{models.QueueStatePending, models.QueueStateRetryable, models.QueueStateInFlight},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

// DeadLettered returns items that exhausted their retry budget
func (p *Processor) DeadLettered(ctx context.Context) ([]*models.QueueItem, error) {
	items, err := p.store.ListQueue(ctx, storage.QueueFilter{
		States: []models.QueueState{models.QueueStateDeadLettered},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-lettered items: %w", err)
	}
	return items, nil
}

// Requeue gives a dead-lettered (or retained exhausted) item a fresh retry budget
func (p *Processor) Requeue(ctx context.Context, id string) (*models.QueueItem, error) {
	item, err := p.store.GetQueueItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}

	switch {
	case item.State == models.QueueStateDeadLettered:
		if err := item.Transition(models.QueueStatePending); err != nil {
			return nil, err
		}
	case item.Exhausted():
		// Исчерпанный элемент старой политики остается в retryable
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotRequeueable, id)
	}

	item.RetryCount = 0
	item.LastError = ""
	if err := p.store.UpdateQueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to requeue item: %w", err)
	}

	p.logger.Info("Item requeued", "item_id", item.ID)
	return item, nil
}

// HandleOnline starts a drain in the background.
// It is meant to be registered as a connectivity OnOnline listener.
func (p *Processor) HandleOnline() {
	p.mu.Lock()
	ctx := p.baseCtx
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("Drain after reconnect failed", "error", err)
		}
	}()
}

// Start schedules periodic drains every interval.
// A scheduled pass runs only while the online checker reports online.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc("@every "+p.interval.String(), func() {
		if p.online != nil && !p.online.IsOnline() {
			return
		}
		if _, err := p.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("Scheduled drain failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule drain: %w", err)
	}

	p.cron = c
	p.baseCtx = ctx
	p.cancel = cancel
	c.Start()

	p.logger.Info("Queue processor started", "interval", p.interval, "policy", p.policy.String())
	return nil
}

// Stop cancels scheduled and background drains and waits for them to finish
func (p *Processor) Stop() {
	p.mu.Lock()
	c, cancel := p.cron, p.cancel
	p.cron, p.cancel = nil, nil
	p.baseCtx = context.Background()
	p.mu.Unlock()

	if c != nil {
		cancel()
		stopCtx := c.Stop()
		<-stopCtx.Done()
	}
	p.wg.Wait()

	p.logger.Info("Queue processor stopped")
}
