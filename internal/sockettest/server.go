// Package sockettest runs an in-process Socket.IO server speaking the websocket transport.
// It is used by tests of the channel and everything built on top of it.
package sockettest

import (
	"chat-link/protocol"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Received is an event emitted by the client.
type Received struct {
	Name string
	Args []json.RawMessage
}

// Server accepts websocket handshakes on /socket.io/.
type Server struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu             sync.Mutex
	authorizations []string
	tokens         []string
	refuse         string
	stall          bool
	greeting       any
	onEvent        func(p *Peer, evt Received)

	Peers chan *Peer
}

func NewServer() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		Peers:    make(chan *Peer, 16),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) BaseURL() *url.URL {
	u, _ := url.Parse(s.Server.URL)
	return u
}

// Refuse makes every following handshake answer CONNECT_ERROR with message.
func (s *Server) Refuse(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = message
}

// Stall makes every following connection upgrade and then stay silent,
// the open frame is never sent.
func (s *Server) Stall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = true
}

// Greet sends a "connected" event with payload right after each socket connect.
func (s *Server) Greet(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = payload
}

// OnEvent installs a hook called for each client event, from the peer read goroutine.
func (s *Server) OnEvent(fn func(p *Peer, evt Received)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// Authorizations returns the Authorization headers seen on handshakes.
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authorizations...)
}

// Tokens returns the auth tokens received in CONNECT packets.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// NextPeer waits for the next authenticated connection.
func (s *Server) NextPeer(timeout time.Duration) (*Peer, error) {
	select {
	case p := <-s.Peers:
		return p, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no peer connected within %s", timeout)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/socket.io") || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "transport unknown", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.authorizations = append(s.authorizations, r.Header.Get("Authorization"))
	stall := s.stall
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if stall {
		go drain(conn)
		return
	}
	p := &Peer{conn: conn, Events: make(chan Received, 64), done: make(chan struct{})}

	open, _ := json.Marshal(protocol.Handshake{
		SID:          uuid.NewString(),
		Upgrades:     []string{},
		PingInterval: 25000,
		PingTimeout:  20000,
		MaxPayload:   1000000,
	})
	if err = p.write(string(protocol.EngineOpen) + string(open)); err != nil {
		_ = conn.Close()
		return
	}

	if !s.accept(p) {
		return
	}
	go s.serve(p)
}

// accept waits for the CONNECT packet and answers it.
func (s *Server) accept(p *Peer) bool {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		_ = p.conn.Close()
		return false
	}
	f, err := protocol.Decode(string(data))
	if err != nil || f.Packet == nil || f.Packet.Type != protocol.SocketConnect {
		_ = p.conn.Close()
		return false
	}
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(f.Packet.Data, &auth)

	s.mu.Lock()
	s.tokens = append(s.tokens, auth.Token)
	refuse, greeting := s.refuse, s.greeting
	s.mu.Unlock()

	if refuse != "" {
		payload, _ := json.Marshal(protocol.ConnectError{Message: refuse})
		_ = p.write("44" + string(payload))
		go drain(p.conn)
		return false
	}
	_ = p.write(fmt.Sprintf(`40{"sid":"%s"}`, uuid.NewString()))
	if greeting != nil {
		_ = p.Emit("connected", greeting)
	}
	s.Peers <- p
	return true
}

// drain reads until the client goes away.
func drain(conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) serve(p *Peer) {
	defer close(p.done)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(string(data))
		if err == nil && f.Type == protocol.EnginePong {
			p.pongs.Add(1)
			continue
		}
		if err != nil || f.Packet == nil || f.Packet.Type != protocol.SocketEvent {
			continue
		}
		evt := Received{Name: f.Packet.Event, Args: f.Packet.Args}

		s.mu.Lock()
		hook := s.onEvent
		s.mu.Unlock()
		if hook != nil {
			hook(p, evt)
		}
		select {
		case p.Events <- evt:
		default:
		}
	}
}

// Peer is the server side of one client connection.
type Peer struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	Events chan Received
	done   chan struct{}
	pongs  atomic.Int32
}

// Pongs counts the pong frames received from the client.
func (p *Peer) Pongs() int {
	return int(p.pongs.Load())
}

func (p *Peer) write(frame string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Emit pushes an event to the client.
func (p *Peer) Emit(name string, payload any) error {
	frame, err := protocol.EncodeEvent(name, payload)
	if err != nil {
		return err
	}
	return p.write(frame)
}

func (p *Peer) Ping() error {
	return p.write(protocol.Ping())
}

// Drop cuts the connection without any goodbye, like a network failure.
func (p *Peer) Drop() {
	_ = p.conn.Close()
}

// Disconnect ends the session from the server side, the client must not reconnect.
func (p *Peer) Disconnect() error {
	return p.write("41")
}

// NextEvent waits for the next event emitted by the client.
func (p *Peer) NextEvent(timeout time.Duration) (Received, error) {
	select {
	case evt := <-p.Events:
		return evt, nil
	case <-time.After(timeout):
		return Received{}, fmt.Errorf("no event within %s", timeout)
	}
}

// Closed is closed once the client connection ended.
func (p *Peer) Closed() <-chan struct{} {
	return p.done
}
