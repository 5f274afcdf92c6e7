package event

import (
	"chat-link/domain"
	"encoding/json"
	"fmt"
)

// Codec maps wire event names to typed events. Chat events are namespaced
// with a prefix, e.g. "chat:newMessage".
type Codec struct {
	Prefix string
}

func NewCodec(prefix string) Codec {
	return Codec{Prefix: prefix}
}

func (c Codec) EventName(kind string) string {
	if c.Prefix == "" {
		return kind
	}
	return c.Prefix + ":" + kind
}

// Decode turns a Socket.IO event into a ServerEvent.
// Events with an unexpected shape return an error, unknown names an Unknown event.
func (c Codec) Decode(name string, args []json.RawMessage) (ServerEvent, error) {
	var first json.RawMessage
	if len(args) > 0 {
		first = args[0]
	}

	switch name {
	case ConnectedType:
		return Connected{Payload: first}, nil
	case c.EventName(ErrorType):
		message, err := decodeErrorMessage(first)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return DomainError{Message: message}, nil
	case c.EventName(ConversationJoinedType):
		var payload JoinConversation
		if err := json.Unmarshal(first, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ConversationJoined{ConversationID: payload.ConversationID}, nil
	case c.EventName(NewMessageType):
		var message domain.Message
		if err := json.Unmarshal(first, &message); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return NewMessage{Message: message}, nil
	default:
		return Unknown{Event: name, Args: args}, nil
	}
}

func (c Codec) JoinConversation(id domain.ConversationID) (string, JoinConversation) {
	return c.EventName(JoinConversationType), JoinConversation{ConversationID: id}
}

func (c Codec) SendMessage(id domain.ConversationID, text string) (string, SendMessage) {
	return c.EventName(SendMessageType), SendMessage{ConversationID: id, Message: text}
}

// The server sends either {"message": "..."} or a bare string.
func decodeErrorMessage(raw json.RawMessage) (string, error) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		return payload.Message, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", err
	}
	return text, nil
}
