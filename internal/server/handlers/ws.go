package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
	wsReadLimit  = 64 << 10
)

// newUpgrader returns the upgrader shared by the feed and presence hubs.
// Callers authenticate with a bearer token, so Origin is not checked.
func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// wsPeer is one websocket connection with its outgoing buffer
type wsPeer struct {
	conn *websocket.Conn
	send chan []byte
}

func newPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, send: make(chan []byte, wsSendBuffer)}
}

// writePump отправляет сообщения из send и пингует соединение.
// Closing send ends the pump with a close frame.
func (p *wsPeer) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop читает сообщения до ошибки или закрытия; onMessage may be nil
func (p *wsPeer) readLoop(logger *slog.Logger, onMessage func([]byte)) {
	p.conn.SetReadLimit(wsReadLimit)
	_ = p.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("Websocket read failed", "error", err)
			}
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}
