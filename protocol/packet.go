// Package protocol encodes and decodes the frames exchanged on the chat channel.
// The channel speaks Engine.IO v4 framing carrying Socket.IO v5 packets.
// No connection handling here, only text in and text out.
package protocol

import (
	"chat-link/errors"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EngineType is the first character of every Engine.IO frame.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// SocketType is the first character of a Socket.IO packet nested in an Engine.IO message.
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
)

const (
	DefaultNamespace = "/"
	// RecordSeparator delimits packets inside one long-polling payload.
	RecordSeparator = "\x1e"
	Version         = "4"
)

// Handshake is the body of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      SocketType
	Namespace string
	AckID     *int
	// Event and Args are set for SocketEvent packets only.
	Event string
	Args  []json.RawMessage
	// Data holds the raw payload of CONNECT, CONNECT_ERROR and ACK packets.
	Data json.RawMessage
}

// Frame is one decoded Engine.IO frame.
type Frame struct {
	Type   EngineType
	Body   string
	Packet *Packet
}

// ConnectError is the payload of a CONNECT_ERROR packet.
type ConnectError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func Ping() string { return string(EnginePing) }
func Pong() string { return string(EnginePong) }
func Close() string {
	return string(EngineClose)
}

// EncodeConnect builds the Socket.IO CONNECT packet for the default namespace with an auth payload.
func EncodeConnect(auth any) (string, error) {
	prefix := string(EngineMessage) + string(SocketConnect)
	if auth == nil {
		return prefix, nil
	}
	bytes, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("encode connect payload: %w", err)
	}
	return prefix + string(bytes), nil
}

// EncodeEvent builds a Socket.IO EVENT packet: 42["name",payload].
func EncodeEvent(name string, payload any) (string, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	bytes, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", name, err)
	}
	return string(EngineMessage) + string(SocketEvent) + string(bytes), nil
}

// Decode parses a single Engine.IO frame. Message frames also get their Socket.IO packet decoded.
func Decode(frame string) (Frame, error) {
	if frame == "" {
		return Frame{}, fmt.Errorf("%w: empty frame", errors.ErrInvalidPacket)
	}
	f := Frame{Type: EngineType(frame[0]), Body: frame[1:]}
	switch f.Type {
	case EngineOpen, EngineClose, EnginePing, EnginePong, EngineUpgrade, EngineNoop:
		return f, nil
	case EngineMessage:
		packet, err := decodePacket(f.Body)
		if err != nil {
			return Frame{}, err
		}
		f.Packet = &packet
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown engine type %q", errors.ErrInvalidPacket, frame[0])
	}
}

// DecodeHandshake reads the body of an open frame.
func DecodeHandshake(f Frame) (Handshake, error) {
	if f.Type != EngineOpen {
		return Handshake{}, fmt.Errorf("%w: expected open, got %q", errors.ErrUnexpectedPacket, f.Type)
	}
	var h Handshake
	if err := json.Unmarshal([]byte(f.Body), &h); err != nil {
		return Handshake{}, fmt.Errorf("%w: handshake: %v", errors.ErrInvalidPacket, err)
	}
	return h, nil
}

// SplitPayload cuts a long-polling body into frames.
func SplitPayload(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, RecordSeparator)
}

// JoinPayload packs frames into a long-polling body.
func JoinPayload(frames ...string) string {
	return strings.Join(frames, RecordSeparator)
}

// <type>[/<namespace>,][<ack id>][<json data>]
func decodePacket(body string) (Packet, error) {
	if body == "" {
		return Packet{}, fmt.Errorf("%w: empty socket packet", errors.ErrInvalidPacket)
	}
	p := Packet{Type: SocketType(body[0]), Namespace: DefaultNamespace}
	if p.Type < SocketConnect || p.Type > SocketConnectError {
		return Packet{}, fmt.Errorf("%w: socket type %q", errors.ErrInvalidPacket, body[0])
	}
	rest := body[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", errors.ErrInvalidPacket, err)
		}
		p.AckID = &id
		rest = rest[digits:]
	}

	if rest == "" {
		return p, nil
	}
	if p.Type != SocketEvent {
		p.Data = json.RawMessage(rest)
		return p, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &raw); err != nil {
		return Packet{}, fmt.Errorf("%w: event args: %v", errors.ErrInvalidPacket, err)
	}
	if len(raw) == 0 {
		return Packet{}, fmt.Errorf("%w: event without name", errors.ErrInvalidPacket)
	}
	if err := json.Unmarshal(raw[0], &p.Event); err != nil {
		return Packet{}, fmt.Errorf("%w: event name: %v", errors.ErrInvalidPacket, err)
	}
	p.Args = raw[1:]
	return p, nil
}
