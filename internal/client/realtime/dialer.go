package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open websocket
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens websocket connections
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WSDialer is the gorilla/websocket Dialer.
// Connections fail a read once nothing, not even a server ping, arrived for
// readTimeout, so a half-open connection is reported promptly.
type WSDialer struct {
	dialer      *websocket.Dialer
	readTimeout time.Duration
}

// NewWSDialer creates a dialer with the given handshake and read timeouts.
// A zero readTimeout disables the read deadline.
func NewWSDialer(handshakeTimeout, readTimeout time.Duration) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		readTimeout: readTimeout,
	}
}

// Dial implements Dialer
func (d *WSDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}

	c := &wsConn{Conn: conn, readTimeout: d.readTimeout}
	if c.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		// Каждый ping сервера продлевает дедлайн чтения
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
			err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
			if err == websocket.ErrCloseSent {
				return nil
			}
			return err
		})
	}
	return c, nil
}

// wsConn продлевает дедлайн чтения и отправляет close-фрейм перед закрытием
type wsConn struct {
	*websocket.Conn
	readTimeout time.Duration
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	mt, p, err := c.Conn.ReadMessage()
	if err == nil && c.readTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return mt, p, err
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.Conn.Close()
}
