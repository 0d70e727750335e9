package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/iudanet/clinicsync/pkg/api"
)

// feedClient is one change feed subscription
type feedClient struct {
	*wsPeer
	ownerID string
	entity  string
	column  string // пусто, если фильтра нет
	value   string
}

// matches reports whether the subscription wants a change of ownerID
func (c *feedClient) matches(ownerID string, frame api.ChangeFrame) bool {
	if c.ownerID != ownerID || c.entity != frame.Entity {
		return false
	}
	if c.column == "" {
		return true
	}
	row := frame.Record
	if frame.EventType == api.EventDelete {
		row = frame.OldRecord
	}
	v, ok := row[c.column]
	return ok && fmt.Sprint(v) == c.value
}

type feedChange struct {
	ownerID string
	frame   api.ChangeFrame
	data    []byte
}

// FeedHub fans record changes out to websocket subscribers.
// Subscribers only see changes of records they own.
type FeedHub struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*feedClient]struct{}
	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan feedChange
	done       chan struct{}
	closeOnce  sync.Once
	count      atomic.Int64
}

// NewFeedHub creates a hub and starts its loop; Close stops it
func NewFeedHub(logger *slog.Logger) *FeedHub {
	h := &FeedHub{
		logger:     logger,
		upgrader:   newUpgrader(),
		clients:    make(map[*feedClient]struct{}),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan feedChange, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *FeedHub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("Feed subscriber connected", "entity", c.entity, "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int64(len(h.clients)))

		case ch := <-h.broadcast:
			for c := range h.clients {
				if !c.matches(ch.ownerID, ch.frame) {
					continue
				}
				select {
				case c.send <- ch.data:
				default:
					// Буфер переполнен: отключаем медленного подписчика
					h.logger.Warn("Dropping slow feed subscriber", "entity", c.entity)
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int64(len(h.clients)))

		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			return
		}
	}
}

// Publish sends frame to subscribers of ownerID's records
func (h *FeedHub) Publish(ownerID string, frame api.ChangeFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to marshal change frame", "error", err)
		return
	}
	select {
	case h.broadcast <- feedChange{ownerID: ownerID, frame: frame, data: data}:
	case <-h.done:
	}
}

// Clients returns the number of connected subscribers
func (h *FeedHub) Clients() int {
	return int(h.count.Load())
}

// Close disconnects all subscribers and stops the hub
func (h *FeedHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Serve обрабатывает GET /api/v1/feed?entity=...&filter=...
func (h *FeedHub) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(h.logger, w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	q := r.URL.Query()
	entity := q.Get(api.EntityQueryParam)
	if entity == "" {
		writeError(h.logger, w, http.StatusBadRequest, "entity is required")
		return
	}
	var column, value string
	if f := q.Get(api.FilterQueryParam); f != "" {
		var err error
		column, value, err = api.ParseFilter(f)
		if err != nil {
			writeError(h.logger, w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		h.logger.Warn("Feed upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		wsPeer:  newPeer(conn),
		ownerID: userID,
		entity:  entity,
		column:  column,
		value:   value,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readLoop(h.logger, nil)

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
