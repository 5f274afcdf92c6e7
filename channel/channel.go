// Package channel owns the lifecycle of the live event channel of an authenticated session.
// One Channel is one connection, reconnected a bounded number of times, closed exactly once.
package channel

import (
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/errors"
	"chat-link/protocol"
	"chat-link/transport"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	Idle State = iota
	Connecting
	Connected
	Reconnecting
	Disconnected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Disconnected:
		return "DISCONNECTED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Handler receives every event of a channel, in arrival order, from a single goroutine.
// It must not call Close or the unsubscribe function synchronously.
type Handler func(evt event.ServerEvent)

type Options struct {
	BaseURL           *url.URL
	Path              string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// HandshakeTimeout bounds the wait for the open frame, ping values take over afterwards.
	HandshakeTimeout  time.Duration
	Codec             event.Codec
}

type Channel struct {
	ID         uuid.UUID
	log        *slog.Logger
	credential domain.Credential
	dialers    []transport.Dialer
	opts       Options

	mu    sync.Mutex
	state State
	conn  transport.Conn

	// deliverMu serializes handler calls with unsubscription
	deliverMu    sync.Mutex
	handler      Handler
	subscription uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	stopAfter func() bool
}

func newChannel(ctx context.Context, log *slog.Logger, credential domain.Credential,
	dialers []transport.Dialer, opts Options) *Channel {
	id := uuid.New()
	c := &Channel{
		ID:         id,
		log:        log.With("channel", id.String()),
		credential: credential,
		dialers:    dialers,
		opts:       opts,
		state:      Idle,
		done:       make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	// A cancelled parent runs Close right away, it waits on mu for stopAfter
	c.mu.Lock()
	c.stopAfter = context.AfterFunc(c.ctx, func() { c.Close() })
	c.mu.Unlock()
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection goroutine has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Subscribe registers the single consumer of the channel events.
func (c *Channel) Subscribe(handler Handler) (func(), error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if c.State() == Closed {
		return nil, errors.ErrChannelClosed
	}
	if c.handler != nil {
		return nil, errors.ErrAlreadySubscribed
	}
	c.handler = handler
	c.subscription++
	id := c.subscription

	return func() {
		c.deliverMu.Lock()
		defer c.deliverMu.Unlock()
		if c.subscription == id {
			c.handler = nil
		}
	}, nil
}

// Emit sends an event over the channel. Fire-and-forget, no acknowledgement is awaited.
func (c *Channel) Emit(ctx context.Context, name string, payload any) error {
	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()

	switch state {
	case Connected:
	case Closed:
		return errors.ErrChannelClosed
	default:
		return errors.ErrNotConnected
	}

	frame, err := protocol.EncodeEvent(name, payload)
	if err != nil {
		return err
	}
	if err = conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	c.log.Debug("Event emitted", "event", name)
	return nil
}

// Close tears the channel down. Once it returns, the handler is never called again.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		stopAfter := c.stopAfter
		c.mu.Unlock()
		if stopAfter != nil {
			stopAfter()
		}
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.state = Closed
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}

		c.deliverMu.Lock()
		c.handler = nil
		c.deliverMu.Unlock()

		c.log.Info("Channel closed")
	})
}

// Start connects in the background. Only the first call has an effect.
func (c *Channel) Start() {
	c.startOnce.Do(func() {
		if !c.setState(Connecting) {
			close(c.done)
			return
		}
		c.log.Debug("Channel opening")
		go c.run()
	})
}

// run keeps the channel connected: one serve per connection, then a bounded
// number of reconnection attempts separated by a fixed delay.
func (c *Channel) run() {
	defer close(c.done)
	attempt := 0

	for {
		established, err := c.serve()
		if c.ctx.Err() != nil {
			return
		}

		if established {
			attempt = 0
		}
		final := goerrors.Is(err, errors.ErrConnectRefused) || goerrors.Is(err, errors.ErrServerDisconnect)
		retry := !final && attempt < c.opts.ReconnectAttempts
		if retry {
			c.setState(Reconnecting)
		} else {
			c.setState(Disconnected)
		}

		if established {
			c.log.Warn("Channel disconnected", "error", err)
			c.deliver(event.Disconnected{Reason: err.Error(), Final: !retry})
		} else {
			c.log.Warn("Channel connection failed", "error", err)
			c.deliver(event.ConnectError{
				Message: err.Error(),
				Refused: goerrors.Is(err, errors.ErrConnectRefused),
			})
		}

		if final {
			return
		}
		if !retry {
			c.deliver(event.ReconnectFailed{Attempts: attempt})
			return
		}

		attempt++
		c.deliver(event.Reconnecting{Attempt: attempt})
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// serve dials, authenticates and reads frames until the connection drops.
// established reports whether the server acknowledged the socket.
func (c *Channel) serve() (established bool, err error) {
	header := http.Header{}
	header.Set("Authorization", c.credential.Bearer())
	target := transport.Target{BaseURL: c.opts.BaseURL, Path: c.opts.Path, Header: header}

	conn, err := transport.Negotiate(c.ctx, c.log, c.dialers, target)
	if err != nil {
		return false, err
	}
	if !c.attach(conn) {
		_ = conn.Close()
		return false, errors.ErrChannelClosed
	}
	defer c.detach(conn)

	if c.opts.HandshakeTimeout > 0 {
		conn.SetReadTimeout(c.opts.HandshakeTimeout)
	}
	if err = c.handshake(conn); err != nil {
		return false, err
	}

	sid, err := c.authenticate(conn)
	if err != nil {
		return false, err
	}
	if !c.setState(Connected) {
		return true, errors.ErrChannelClosed
	}
	c.log.Info("Channel connected", "transport", conn.Transport(), "sid", sid)
	c.deliver(event.Connect{SID: sid, Transport: conn.Transport()})

	for {
		f, err := c.read(conn)
		if err != nil {
			return true, err
		}
		switch f.Type {
		case protocol.EngineClose:
			return true, fmt.Errorf("transport closed by server")
		case protocol.EngineMessage:
			p := f.Packet
			if p.Namespace != protocol.DefaultNamespace {
				continue
			}
			switch p.Type {
			case protocol.SocketEvent:
				evt, err := c.opts.Codec.Decode(p.Event, p.Args)
				if err != nil {
					c.log.Warn("Malformed event dropped", "event", p.Event, "error", err)
					continue
				}
				c.deliver(evt)
			case protocol.SocketDisconnect:
				return true, errors.ErrServerDisconnect
			}
		}
	}
}

func (c *Channel) handshake(conn transport.Conn) error {
	f, err := c.read(conn)
	if err != nil {
		return err
	}
	h, err := protocol.DecodeHandshake(f)
	if err != nil {
		return err
	}
	if h.PingInterval > 0 {
		conn.SetReadTimeout(time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond)
	}
	return nil
}

func (c *Channel) authenticate(conn transport.Conn) (string, error) {
	connect, err := protocol.EncodeConnect(map[string]string{"token": string(c.credential)})
	if err != nil {
		return "", err
	}
	if err = conn.Write(c.ctx, connect); err != nil {
		return "", err
	}

	for {
		f, err := c.read(conn)
		if err != nil {
			return "", err
		}
		if f.Type == protocol.EngineClose {
			return "", fmt.Errorf("transport closed during handshake")
		}
		if f.Packet == nil || f.Packet.Namespace != protocol.DefaultNamespace {
			continue
		}
		switch f.Packet.Type {
		case protocol.SocketConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(f.Packet.Data, &ack)
			return ack.SID, nil
		case protocol.SocketConnectError:
			var refusal protocol.ConnectError
			_ = json.Unmarshal(f.Packet.Data, &refusal)
			return "", fmt.Errorf("%w: %s", errors.ErrConnectRefused, refusal.Message)
		}
	}
}

// read returns the next frame, answering pings on the way.
func (c *Channel) read(conn transport.Conn) (protocol.Frame, error) {
	for {
		raw, err := conn.Read()
		if err != nil {
			return protocol.Frame{}, err
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warn("Invalid frame dropped", "error", err)
			continue
		}
		switch f.Type {
		case protocol.EnginePing:
			if err = conn.Write(c.ctx, protocol.Pong()); err != nil {
				return protocol.Frame{}, err
			}
		case protocol.EnginePong, protocol.EngineNoop:
		default:
			return f, nil
		}
	}
}

func (c *Channel) deliver(evt event.ServerEvent) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if c.handler == nil {
		c.log.Debug("No subscriber, event dropped", "event", evt.Name())
		return
	}
	c.handler(evt)
}

// setState never leaves Closed.
func (c *Channel) setState(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return false
	}
	c.state = s
	return true
}

func (c *Channel) attach(conn transport.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return false
	}
	c.conn = conn
	return true
}

func (c *Channel) detach(conn transport.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}
