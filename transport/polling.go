package transport

import (
	"bytes"
	"chat-link/protocol"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Polling is the Engine.IO HTTP long-polling transport.
// Used when the websocket upgrade is blocked by a proxy.
type Polling struct {
	client *http.Client
}

func NewPolling(client *http.Client) *Polling {
	return &Polling{client: client}
}

func (p *Polling) Name() string { return POLLING }

// Dial performs the polling handshake. The open frame is kept so the first Read returns it,
// exactly like the websocket transport.
func (p *Polling) Dial(ctx context.Context, target Target) (Conn, error) {
	endpoint := target.URL(httpScheme(target.BaseURL), url.Values{"transport": {POLLING}})
	conn := &pollingConn{client: p.client, endpoint: endpoint, header: target.Header}

	frames, err := conn.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("polling handshake: empty response")
	}
	open, err := protocol.Decode(frames[0])
	if err != nil {
		return nil, err
	}
	handshake, err := protocol.DecodeHandshake(open)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("sid", handshake.SID)
	u.RawQuery = q.Encode()

	conn.endpoint = u.String()
	conn.pending = frames
	conn.ctx, conn.cancel = context.WithCancel(context.Background())
	return conn, nil
}

type pollingConn struct {
	client      *http.Client
	endpoint    string
	header      http.Header
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	pending     []string
	readTimeout atomic.Int64
	closeOnce   sync.Once
}

func (c *pollingConn) Transport() string { return POLLING }

func (c *pollingConn) SetReadTimeout(d time.Duration) {
	c.readTimeout.Store(int64(d))
}

func (c *pollingConn) Read() (string, error) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			frame := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return frame, nil
		}
		c.mu.Unlock()

		frames, err := c.poll()
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.pending = append(c.pending, frames...)
		c.mu.Unlock()
	}
}

func (c *pollingConn) poll() ([]string, error) {
	ctx := c.ctx
	if d := time.Duration(c.readTimeout.Load()); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, d)
		defer cancel()
	}
	return c.get(ctx, c.withCacheBuster())
}

func (c *pollingConn) Write(ctx context.Context, frame string) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("polling write: %w", c.ctx.Err())
	}
	return c.post(ctx, frame)
}

func (c *pollingConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = c.post(ctx, protocol.Close())
		c.cancel()
	})
	return err
}

func (c *pollingConn) withCacheBuster() string {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return c.endpoint
	}
	q := u.Query()
	q.Set("t", uuid.NewString())
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *pollingConn) get(ctx context.Context, endpoint string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, c.header)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polling read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling get: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return protocol.SplitPayload(string(body)), nil
}

func (c *pollingConn) post(ctx context.Context, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return err
	}
	copyHeader(req.Header, c.header)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("polling post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polling post: status %d", resp.StatusCode)
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
