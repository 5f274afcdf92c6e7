package domain

import "time"

type ConversationID string

type ConversationStatus string

const (
	PENDING ConversationStatus = "PENDING"
	ACTIVE  ConversationStatus = "ACTIVE"
	CLOSED  ConversationStatus = "CLOSED"
)

// Conversation is the client copy of a backend conversation.
// Messages keep the order in which they were observed.
type Conversation struct {
	ID            ConversationID     `json:"id"`
	Status        ConversationStatus `json:"status"`
	LastMessageAt *time.Time         `json:"lastMessageAt,omitempty"`
	Participants  []Participant      `json:"participants,omitempty"`
	Messages      []Message          `json:"messages,omitempty"`
	// HistoryLoaded is set by the client once Messages came from the conversation
	// itself. A copy built from a listing only carries a summary.
	HistoryLoaded bool `json:"historyLoaded,omitempty"`
}

// Observe appends a pushed message and moves the last-message marker forward.
func (c *Conversation) Observe(message Message) {
	c.Messages = append(c.Messages, message)
	if c.LastMessageAt == nil || message.CreatedAt.After(*c.LastMessageAt) {
		at := message.CreatedAt
		c.LastMessageAt = &at
	}
}
