// Package realtime bridges the server change feed and presence channels
// into local handlers and the local event bus.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/clinicsync/internal/client/events"
	"github.com/iudanet/clinicsync/internal/metrics"
	"github.com/iudanet/clinicsync/internal/models"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

// Пути каналов на сервере
const (
	FeedPath     = "/api/v1/feed"
	PresencePath = "/api/v1/presence/"
)

// Таймауты websocket-соединений
const (
	// DefaultHandshakeTimeout bounds the websocket handshake
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultReadTimeout is how long a channel may stay silent; the server pings every 30s
	DefaultReadTimeout = 60 * time.Second
)

// TokenProvider returns the caller's bearer token
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Publisher receives change events
type Publisher interface {
	Emit(topic string, payload any)
}

// Filter scopes a feed to rows where Column equals Value
type Filter struct {
	Column string
	Value  string
}

// String returns the filter in feed query form, e.g. "owner_id=eq.42"
func (f Filter) String() string {
	if f.Column == "" {
		return ""
	}
	return pkgapi.FormatFilter(f.Column, f.Value)
}

// Handlers receive feed events. Nil handlers are skipped.
type Handlers struct {
	OnInsert func(models.ChangeEvent)
	OnUpdate func(models.ChangeEvent)
	OnDelete func(models.ChangeEvent)
	OnError  func(error)
}

// Bridge opens feed subscriptions and presence channels
type Bridge struct {
	dialer    Dialer
	tokens    TokenProvider
	publisher Publisher
	logger    *slog.Logger
	wsURL     string
}

// Option configures Bridge
type Option func(*Bridge)

// WithDialer replaces the websocket dialer
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithTokenProvider adds Authorization to the handshake
func WithTokenProvider(tp TokenProvider) Option {
	return func(b *Bridge) { b.tokens = tp }
}

// WithPublisher republishes every change as "change.<entity>"
func WithPublisher(p Publisher) Option {
	return func(b *Bridge) { b.publisher = p }
}

// NewBridge creates a bridge to the server at baseURL (http or https)
func NewBridge(baseURL string, logger *slog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		dialer: NewWSDialer(DefaultHandshakeTimeout, DefaultReadTimeout),
		logger: logger,
		wsURL:  websocketURL(baseURL),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func websocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (b *Bridge) dial(ctx context.Context, channel, target string) (Conn, error) {
	header := http.Header{}
	if b.tokens != nil {
		token, err := b.tokens.AccessToken(ctx)
		if err != nil {
			return nil, &ChannelError{Channel: channel, Reason: "no access token", Err: err}
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, err := b.dialer.Dial(ctx, target, header)
	if err != nil {
		return nil, &ChannelError{Channel: channel, Reason: "dial failed", Err: err}
	}
	return conn, nil
}

// channel is the lifecycle shared by subscriptions and presence channels
type channel struct {
	conn    Conn
	done    chan struct{}
	stop    func() bool
	name    string
	once    sync.Once
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newChannel(ctx context.Context, name string, conn Conn) *channel {
	ch := &channel{conn: conn, name: name, done: make(chan struct{})}
	// Отмена контекста закрывает канал так же, как явный вызов
	ch.stop = context.AfterFunc(ctx, ch.close)
	return ch
}

func (ch *channel) close() {
	ch.once.Do(func() {
		ch.closed.Store(true)
		_ = ch.conn.Close()
	})
}

// fail reports err through onError unless the channel was closed deliberately
func (ch *channel) fail(onError func(error), reason string, err error) {
	if ch.closed.Load() {
		return
	}
	ch.close()
	if onError != nil {
		onError(&ChannelError{Channel: ch.name, Reason: reason, Err: err})
	}
}

func (ch *channel) writeJSON(v any) error {
	if ch.closed.Load() {
		return &ChannelError{Channel: ch.name, Reason: "channel closed"}
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.WriteJSON(v); err != nil {
		return &ChannelError{Channel: ch.name, Reason: "write failed", Err: err}
	}
	return nil
}

// Subscription is an open change feed
type Subscription struct {
	ch     *channel
	entity string
	filter Filter
}

// Entity returns the subscribed entity type
func (s *Subscription) Entity() string { return s.entity }

// Filter returns the subscription filter
func (s *Subscription) Filter() Filter { return s.filter }

// Unsubscribe closes the feed. It is safe to call more than once and
// from inside a handler; OnError is not called for a deliberate close.
func (s *Subscription) Unsubscribe() {
	s.ch.stop()
	s.ch.close()
}

// Done is closed when the read loop has exited
func (s *Subscription) Done() <-chan struct{} { return s.ch.done }

// Subscribe opens a change feed for entity scoped by filter.
// Every server change results in exactly one handler call. When the
// connection drops or a frame cannot be decoded, OnError receives a
// *ChannelError and the subscription stops.
func (b *Bridge) Subscribe(ctx context.Context, entity string, filter Filter, h Handlers) (*Subscription, error) {
	if entity == "" {
		return nil, fmt.Errorf("entity is empty")
	}

	q := url.Values{}
	q.Set(pkgapi.EntityQueryParam, entity)
	if f := filter.String(); f != "" {
		q.Set(pkgapi.FilterQueryParam, f)
	}
	name := "feed:" + entity

	conn, err := b.dial(ctx, name, b.wsURL+FeedPath+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ch:     newChannel(ctx, name, conn),
		entity: entity,
		filter: filter,
	}
	go b.readFeed(sub, h)

	b.logger.Info("Subscribed to change feed", "entity", entity, "filter", filter.String())
	return sub, nil
}

func (b *Bridge) readFeed(sub *Subscription, h Handlers) {
	defer close(sub.ch.done)

	for {
		_, data, err := sub.ch.conn.ReadMessage()
		if err != nil {
			if !sub.ch.closed.Load() {
				b.logger.Warn("Change feed lost", "entity", sub.entity, "error", err)
			}
			sub.ch.fail(h.OnError, "connection lost", err)
			return
		}

		var frame pkgapi.ChangeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			sub.ch.fail(h.OnError, "undecodable frame", err)
			return
		}

		entity := frame.Entity
		if entity == "" {
			entity = sub.entity
		}
		ev := models.ChangeEvent{
			Record:     frame.Record,
			OldRecord:  frame.OldRecord,
			EntityType: entity,
			Kind:       models.ChangeKind(frame.EventType),
		}

		var handler func(models.ChangeEvent)
		switch frame.EventType {
		case pkgapi.EventInsert:
			handler = h.OnInsert
		case pkgapi.EventUpdate:
			handler = h.OnUpdate
		case pkgapi.EventDelete:
			handler = h.OnDelete
		case pkgapi.EventError:
			sub.ch.fail(h.OnError, "server error", fmt.Errorf("%s", frame.Message))
			return
		default:
			sub.ch.fail(h.OnError, "undecodable frame", fmt.Errorf("unknown event type %q", frame.EventType))
			return
		}

		// После Unsubscribe события не доставляются
		if sub.ch.closed.Load() {
			return
		}

		metrics.ObserveChange(entity, frame.EventType)
		if handler != nil {
			handler(ev)
		}
		if b.publisher != nil {
			b.publisher.Emit(events.TopicChangePrefix+entity, ev)
		}
	}
}

// PresenceHandlers receive membership events. Nil handlers are skipped.
type PresenceHandlers struct {
	OnSync  func(models.PresenceEvent)
	OnJoin  func(models.PresenceEvent)
	OnLeave func(models.PresenceEvent)
	OnError func(error)
}

// PresenceChannel tracks who is present on a shared channel
type PresenceChannel struct {
	ch      *channel
	members map[string]map[string]any
	key     string
	mu      sync.RWMutex
}

// JoinPresence joins channel as key and announces meta
func (b *Bridge) JoinPresence(ctx context.Context, channelName, key string, meta map[string]any, h PresenceHandlers) (*PresenceChannel, error) {
	if channelName == "" || key == "" {
		return nil, fmt.Errorf("channel and key are required")
	}

	q := url.Values{}
	q.Set("key", key)
	name := "presence:" + channelName

	conn, err := b.dial(ctx, name, b.wsURL+PresencePath+url.PathEscape(channelName)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	pc := &PresenceChannel{
		ch:      newChannel(ctx, name, conn),
		members: make(map[string]map[string]any),
		key:     key,
	}
	if err := pc.Track(meta); err != nil {
		pc.Leave()
		return nil, err
	}
	go b.readPresence(pc, h)

	b.logger.Info("Joined presence channel", "channel", channelName, "key", key)
	return pc, nil
}

// Track announces new metadata for this member
func (pc *PresenceChannel) Track(meta map[string]any) error {
	return pc.ch.writeJSON(pkgapi.PresenceFrame{Type: pkgapi.PresenceTrack, Key: pc.key, Meta: meta})
}

// Members returns a copy of the current membership
func (pc *PresenceChannel) Members() map[string]map[string]any {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make(map[string]map[string]any, len(pc.members))
	for k, v := range pc.members {
		out[k] = v
	}
	return out
}

// Leave closes the channel. Safe to call more than once.
func (pc *PresenceChannel) Leave() {
	pc.ch.stop()
	pc.ch.close()
}

// Done is closed when the read loop has exited
func (pc *PresenceChannel) Done() <-chan struct{} { return pc.ch.done }

func (b *Bridge) readPresence(pc *PresenceChannel, h PresenceHandlers) {
	defer close(pc.ch.done)

	for {
		_, data, err := pc.ch.conn.ReadMessage()
		if err != nil {
			pc.ch.fail(h.OnError, "connection lost", err)
			return
		}

		var frame pkgapi.PresenceFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			pc.ch.fail(h.OnError, "undecodable frame", err)
			return
		}

		ev := models.PresenceEvent{Key: frame.Key, Kind: models.PresenceKind(frame.Type)}
		var handler func(models.PresenceEvent)

		pc.mu.Lock()
		switch frame.Type {
		case pkgapi.PresenceSync:
			pc.members = make(map[string]map[string]any, len(frame.Presences))
			for k, v := range frame.Presences {
				pc.members[k] = v
			}
			handler = h.OnSync
		case pkgapi.PresenceJoin:
			pc.members[frame.Key] = frame.Meta
			handler = h.OnJoin
		case pkgapi.PresenceLeave:
			delete(pc.members, frame.Key)
			handler = h.OnLeave
		default:
			pc.mu.Unlock()
			pc.ch.fail(h.OnError, "undecodable frame", fmt.Errorf("unknown presence type %q", frame.Type))
			return
		}
		ev.Presences = make(map[string]map[string]any, len(pc.members))
		for k, v := range pc.members {
			ev.Presences[k] = v
		}
		pc.mu.Unlock()

		if pc.ch.closed.Load() {
			return
		}
		if handler != nil {
			handler(ev)
		}
	}
}
