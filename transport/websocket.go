package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type WebSocket struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

func NewWebSocket(handshakeTimeout, writeTimeout time.Duration) *WebSocket {
	return &WebSocket{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		writeTimeout: writeTimeout,
	}
}

func (w *WebSocket) Name() string { return WEBSOCKET }

func (w *WebSocket) Dial(ctx context.Context, target Target) (Conn, error) {
	endpoint := target.URL(wsScheme(target.BaseURL), url.Values{"transport": {WEBSOCKET}})
	conn, _, err := w.dialer.DialContext(ctx, endpoint, target.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}
	return &wsConn{conn: conn, writeTimeout: w.writeTimeout}, nil
}

// wsConn serializes writes, gorilla connections support one concurrent writer only.
type wsConn struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
	readTimeout  atomic.Int64
	closeOnce    sync.Once
	closeErr     error
}

func (c *wsConn) Transport() string { return WEBSOCKET }

func (c *wsConn) SetReadTimeout(d time.Duration) {
	c.readTimeout.Store(int64(d))
}

func (c *wsConn) Read() (string, error) {
	for {
		if d := time.Duration(c.readTimeout.Load()); d > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(d))
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
		// Binary attachments are not part of the chat events
	}
}

func (c *wsConn) Write(ctx context.Context, frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
