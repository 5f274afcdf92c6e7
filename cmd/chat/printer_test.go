package main

import (
	"bytes"
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/notify"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrinter_Shows_Only_The_Open_Conversation(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	p := newPrinter(notify.NewConsole(&out, false))
	p.current = func() domain.ConversationID { return "c-1" }
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)

	req.NoError(p.Consume(context.Background(), event.NewMessage{Message: domain.Message{
		ConversationID: "c-1", SenderID: "u-1", Content: "hello", CreatedAt: at,
	}}))
	req.NoError(p.Consume(context.Background(), event.NewMessage{Message: domain.Message{
		ConversationID: "c-2", SenderID: "u-2", Content: "elsewhere", CreatedAt: at,
	}}))

	req.Equal("[09:00:00] u-1: hello\n", out.String())
}

func TestWriteConversations(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)

	writeConversations(&out, []domain.Conversation{
		{
			ID:            "c-1",
			Status:        domain.ACTIVE,
			LastMessageAt: &at,
			Participants:  []domain.Participant{{FirstName: "Ada", LastName: "Obi"}, {Email: "admin@needhomes.ng"}},
			Messages:      []domain.Message{{ID: "m-1"}},
		},
		{ID: "c-2", Status: domain.PENDING},
	})

	req.Contains(out.String(), "c-1")
	req.Contains(out.String(), "Ada Obi, admin@needhomes.ng")
	req.Contains(out.String(), "2026-10-19 09:00:00")
	req.Contains(out.String(), "PENDING")
	req.Contains(out.String(), "2 conversation(s)")
}
