package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrMissingCredential  = fmt.Errorf("missing session credential")
	ErrAlreadySubscribed  = fmt.Errorf("channel already has a subscriber")
	ErrNotConnected       = fmt.Errorf("channel is not connected")
	ErrChannelClosed      = fmt.Errorf("channel is closed")
	ErrConnectRefused     = fmt.Errorf("server refused the connection")
	ErrServerDisconnect   = fmt.Errorf("server closed the session")
	ErrNoTransport        = fmt.Errorf("no transport available")
	ErrUnexpectedPacket   = fmt.Errorf("unexpected packet")
	ErrInvalidPacket      = fmt.Errorf("invalid packet")
	ErrEmptyMessage       = fmt.Errorf("message is empty")
	ErrMessageTooLong     = fmt.Errorf("message is too long")
	ErrDispatcherClosed   = fmt.Errorf("dispatcher is closed")
	ErrNoConversation     = fmt.Errorf("no conversation is open")
	ErrConversationAbsent = fmt.Errorf("conversation not found")
)
