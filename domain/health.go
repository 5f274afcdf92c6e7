package domain

import "time"

// SessionHealth is a point-in-time view of the client, logged by the heartbeat.
type SessionHealth struct {
	ChannelState   string
	Link           LinkState
	ConversationID ConversationID
	Messages       int
	PID            int32
	CPU            float64
	RAM            uint64
	At             time.Time
}

// LinkName is the short label of a link state.
func LinkName(link LinkState) string {
	switch l := link.(type) {
	case LinkJoined:
		return "JOINED(" + string(l.ConversationID) + ")"
	case LinkConnecting:
		return "CONNECTING"
	default:
		return "DISCONNECTED"
	}
}
