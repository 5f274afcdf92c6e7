// Package domain contains core concepts of the chat system.
// This file defines Message records as broadcast by the server.
// Flags are carried verbatim, the client never computes them.
package domain

import (
	"time"
)

// Message represents an immutable chat record belonging to exactly one conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	SenderID       string         `json:"senderId"`
	Sender         *Participant   `json:"sender,omitempty"`
	Content        string         `json:"content"`
	IsRead         bool           `json:"isRead"`
	IsSystem       bool           `json:"isSystem"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Author returns the best human label for the sender.
func (m Message) Author() string {
	switch {
	case m.IsSystem:
		return "system"
	case m.Sender != nil && m.Sender.Name() != "":
		return m.Sender.Name()
	default:
		return m.SenderID
	}
}
