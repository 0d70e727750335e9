package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/iudanet/clinicsync/pkg/api"
)

// presencePeer is one connection on a presence channel
type presencePeer struct {
	*wsPeer
	key     string
	tracked bool
	closed  bool
}

type presenceChannel struct {
	members map[string]map[string]any
	peers   map[*presencePeer]struct{}
}

// PresenceHub tracks who is present on named channels.
// A peer becomes a member with its first track frame and stops being one
// when its last connection for the same key goes away.
type PresenceHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	channels map[string]*presenceChannel
	mu       sync.Mutex
}

// NewPresenceHub creates an empty presence hub
func NewPresenceHub(logger *slog.Logger) *PresenceHub {
	return &PresenceHub{
		logger:   logger,
		upgrader: newUpgrader(),
		channels: make(map[string]*presenceChannel),
	}
}

// Members returns a snapshot of channel's members
func (h *PresenceHub) Members(channel string) map[string]map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]map[string]any)
	if ch, ok := h.channels[channel]; ok {
		for k, v := range ch.members {
			out[k] = v
		}
	}
	return out
}

// Serve обрабатывает GET /api/v1/presence/{channel}?key=...
func (h *PresenceHub) Serve(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserID(r.Context()); !ok {
		writeError(h.logger, w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	name := chi.URLParam(r, "channel")
	key := r.URL.Query().Get("key")
	if name == "" || key == "" {
		writeError(h.logger, w, http.StatusBadRequest, "channel and key are required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Presence upgrade failed", "error", err)
		return
	}

	p := &presencePeer{wsPeer: newPeer(conn), key: key}
	h.join(name, p)

	go p.writePump()
	p.readLoop(h.logger, func(msg []byte) {
		var frame api.PresenceFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			h.logger.Warn("Invalid presence frame", "channel", name, "error", err)
			return
		}
		if frame.Type == api.PresenceTrack {
			h.track(name, p, frame.Meta)
		}
	})

	h.leave(name, p)
}

func (h *PresenceHub) join(name string, p *presencePeer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[name]
	if !ok {
		ch = &presenceChannel{
			members: make(map[string]map[string]any),
			peers:   make(map[*presencePeer]struct{}),
		}
		h.channels[name] = ch
	}
	ch.peers[p] = struct{}{}
}

func (h *PresenceHub) track(name string, p *presencePeer, meta map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[name]
	if !ok {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	first := !p.tracked
	p.tracked = true
	ch.members[p.key] = meta

	if first {
		snapshot := make(map[string]map[string]any, len(ch.members))
		for k, v := range ch.members {
			snapshot[k] = v
		}
		h.deliverLocked(p, api.PresenceFrame{Type: api.PresenceSync, Presences: snapshot})
		h.logger.Info("Presence member joined", "channel", name, "key", p.key)
	}
	h.broadcastLocked(ch, p, api.PresenceFrame{Type: api.PresenceJoin, Key: p.key, Meta: meta})
}

func (h *PresenceHub) leave(name string, p *presencePeer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[name]
	if !ok {
		return
	}
	delete(ch.peers, p)
	if !p.closed {
		p.closed = true
		close(p.send)
	}

	if p.tracked {
		// Тот же ключ может быть подключен повторно
		stillPresent := false
		for other := range ch.peers {
			if other.key == p.key && other.tracked {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			meta := ch.members[p.key]
			delete(ch.members, p.key)
			h.broadcastLocked(ch, nil, api.PresenceFrame{Type: api.PresenceLeave, Key: p.key, Meta: meta})
			h.logger.Info("Presence member left", "channel", name, "key", p.key)
		}
	}

	if len(ch.peers) == 0 {
		delete(h.channels, name)
	}
}

// broadcastLocked sends frame to every peer of ch except skip
func (h *PresenceHub) broadcastLocked(ch *presenceChannel, skip *presencePeer, frame api.PresenceFrame) {
	for p := range ch.peers {
		if p != skip {
			h.deliverLocked(p, frame)
		}
	}
}

func (h *PresenceHub) deliverLocked(p *presencePeer, frame api.PresenceFrame) {
	if p.closed {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to marshal presence frame", "error", err)
		return
	}
	select {
	case p.send <- data:
	default:
		// Медленный участник: закрываем, уход обработает leave
		h.logger.Warn("Dropping slow presence peer", "key", p.key)
		p.closed = true
		close(p.send)
	}
}
