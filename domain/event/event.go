package event

import (
	"chat-link/domain"
	"encoding/json"
)

// ServerEvent is anything the channel hands to its subscriber,
// lifecycle signals included.
type ServerEvent interface {
	Name() string
}

const (
	ConnectType            = "connect"
	ConnectErrorType       = "connect_error"
	DisconnectedType       = "disconnect"
	ReconnectingType       = "reconnect_attempt"
	ReconnectFailedType    = "reconnect_failed"
	ConnectedType          = "connected"
	ErrorType              = "error"
	ConversationJoinedType = "conversationJoined"
	NewMessageType         = "newMessage"
	JoinConversationType   = "joinConversation"
	SendMessageType        = "sendMessage"
)

// Connect is emitted each time the server acknowledges the socket, reconnections included.
type Connect struct {
	SID       string
	Transport string
}

type ConnectError struct {
	Message string
	// Refused is set when the server rejected the handshake, no retry follows.
	Refused bool
}

type Disconnected struct {
	Reason string
	// Final is set when no reconnection will follow.
	Final bool
}

type Reconnecting struct {
	Attempt int
}

type ReconnectFailed struct {
	Attempts int
}

// Connected is the application greeting sent after authentication.
type Connected struct {
	Payload json.RawMessage
}

type DomainError struct {
	Message string
}

type ConversationJoined struct {
	ConversationID domain.ConversationID
}

type NewMessage struct {
	Message domain.Message
}

// Unknown keeps events this client has no use for, so they can still be logged.
type Unknown struct {
	Event string
	Args  []json.RawMessage
}

func (Connect) Name() string            { return ConnectType }
func (ConnectError) Name() string       { return ConnectErrorType }
func (Disconnected) Name() string       { return DisconnectedType }
func (Reconnecting) Name() string       { return ReconnectingType }
func (ReconnectFailed) Name() string    { return ReconnectFailedType }
func (Connected) Name() string          { return ConnectedType }
func (DomainError) Name() string        { return ErrorType }
func (ConversationJoined) Name() string { return ConversationJoinedType }
func (NewMessage) Name() string         { return NewMessageType }
func (u Unknown) Name() string          { return u.Event }

// User extracts the participant from the greeting, whether wrapped in {"user": ...} or not.
func (c Connected) User() (domain.Participant, bool) {
	if len(c.Payload) == 0 {
		return domain.Participant{}, false
	}
	var wrapped struct {
		User *domain.Participant `json:"user"`
	}
	if err := json.Unmarshal(c.Payload, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, true
	}
	var p domain.Participant
	if err := json.Unmarshal(c.Payload, &p); err != nil || p.ID == "" {
		return domain.Participant{}, false
	}
	return p, true
}

// JoinConversation is the payload of <prefix>:joinConversation.
type JoinConversation struct {
	ConversationID domain.ConversationID `json:"conversationId"`
}

// SendMessage is the payload of <prefix>:sendMessage.
type SendMessage struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Message        string                `json:"message"`
}
