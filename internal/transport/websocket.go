package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer opens websocket-backed channel connections with a
// bounded handshake, mirroring the tuned HTTP client used for polling.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer with the given handshake timeout
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Dial opens one websocket connection to url
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla connection to the Conn seam
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, MarkNormalClosure(err)
		}
		return nil, err
	}
	return payload, nil
}

func (c *wsConn) Write(payload []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Ping(deadline time.Time) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *wsConn) Close(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	// Best effort close handshake; the hard close below always runs.
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
