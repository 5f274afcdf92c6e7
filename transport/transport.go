// Package transport opens the raw frame connection used by a chat channel.
// Two kinds exist, websocket and HTTP long-polling, tried in a configured order.
package transport

import (
	"chat-link/errors"
	"chat-link/protocol"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	WEBSOCKET = "websocket"
	POLLING   = "polling"
)

// Target tells a dialer where the channel server lives and how to authenticate the handshake.
type Target struct {
	BaseURL *url.URL
	Path    string
	Header  http.Header
}

// URL builds the handshake endpoint with the given scheme and Engine.IO query.
func (t Target) URL(scheme string, query url.Values) string {
	u := *t.BaseURL
	u.Scheme = scheme
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(t.Path, "/") + "/"
	q := u.Query()
	q.Set("EIO", protocol.Version)
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Conn carries Engine.IO frames. Read is only called from one goroutine,
// Write is safe for concurrent use.
type Conn interface {
	Transport() string
	Read() (string, error)
	Write(ctx context.Context, frame string) error
	SetReadTimeout(d time.Duration)
	Close() error
}

type Dialer interface {
	Name() string
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Negotiate dials each transport in order and returns the first connection established.
func Negotiate(ctx context.Context, log *slog.Logger, dialers []Dialer, target Target) (Conn, error) {
	if len(dialers) == 0 {
		return nil, errors.ErrNoTransport
	}
	var lastErr error
	for _, d := range dialers {
		conn, err := d.Dial(ctx, target)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug("Transport failed, trying next one", "transport", d.Name(), "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", errors.ErrNoTransport, lastErr)
}

// FromNames resolves transport names (websocket, polling) into dialers, keeping their order.
func FromNames(names []string, client *http.Client, writeTimeout time.Duration) ([]Dialer, error) {
	var dialers []Dialer
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case WEBSOCKET:
			dialers = append(dialers, NewWebSocket(client.Timeout, writeTimeout))
		case POLLING:
			// Long polls are bounded by the ping timeout, not by the request timeout
			dialers = append(dialers, NewPolling(&http.Client{Transport: client.Transport}))
		case "":
		default:
			return nil, fmt.Errorf("unknown transport %q", name)
		}
	}
	if len(dialers) == 0 {
		return nil, errors.ErrNoTransport
	}
	return dialers, nil
}

func httpScheme(u *url.URL) string {
	if u.Scheme == "https" || u.Scheme == "wss" {
		return "https"
	}
	return "http"
}

func wsScheme(u *url.URL) string {
	if u.Scheme == "https" || u.Scheme == "wss" {
		return "wss"
	}
	return "ws"
}
