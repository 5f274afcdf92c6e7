// Package projection builds the local message thread from observed events.
// Handles ordering only: messages stay in arrival order, no deduplication.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-link/domain"
	"chat-link/domain/event"
	"context"
	"sync"
)

// Thread is the ordered message list of one conversation.
type Thread struct {
	mu             sync.RWMutex
	conversationID domain.ConversationID
	messages       []domain.Message
}

func NewThread() *Thread {
	return &Thread{}
}

func (t *Thread) ConversationID() domain.ConversationID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conversationID
}

// Reset switches the thread to another conversation, seeded with its history.
func (t *Thread) Reset(id domain.ConversationID, seed []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversationID = id
	t.messages = append([]domain.Message(nil), seed...)
}

// Append adds the message at the tail, whatever its timestamp.
func (t *Thread) Append(message domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, message)
}

// Messages returns a copy, callers may keep it.
func (t *Thread) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages...)
}

func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Consume appends pushed messages which belong to the thread.
// A message without conversation id is taken as part of the current one.
func (t *Thread) Consume(_ context.Context, e event.ServerEvent) error {
	switch evt := e.(type) {
	case event.NewMessage:
		t.mu.Lock()
		defer t.mu.Unlock()
		id := evt.Message.ConversationID
		if id != "" && id != t.conversationID {
			return nil
		}
		t.messages = append(t.messages, evt.Message)
	}
	return nil
}
