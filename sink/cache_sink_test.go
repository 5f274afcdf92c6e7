package sink

import (
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/repositories"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestCacheSink_Refreshes_Cached_Conversation(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := repositories.OpenDB("")
	req.NoError(err)
	defer db.Close()
	repository := repositories.NewConversationRepository(db, log, time.Minute, nil)
	req.NoError(repository.StoreConversation(domain.Conversation{ID: "c-1", Status: domain.ACTIVE}))
	sink := NewCacheSink(repository, log)
	at := time.Now().UTC()

	// When a message and unrelated events are consumed
	err = sink.Consume(context.Background(), event.NewMessage{Message: domain.Message{
		ID: "m-1", ConversationID: "c-1", Content: "hello", CreatedAt: at,
	}})
	req.NoError(err)
	req.NoError(sink.Consume(context.Background(), event.Reconnecting{Attempt: 1}))

	// Then only the message reaches the cache
	cached, err := repository.GetConversation("c-1")
	req.NoError(err)
	req.Len(cached.Messages, 1)
	req.Equal("hello", cached.Messages[0].Content)
	req.True(at.Equal(*cached.LastMessageAt))
}

func TestLogSink_Never_Fails(t *testing.T) {
	req := require.New(t)
	sink := NewLogSink(logs.GetLoggerFromLevel(slog.LevelDebug))

	for _, evt := range []event.ServerEvent{
		event.Connect{SID: "s"},
		event.Connected{},
		event.ConnectError{Message: "x"},
		event.Disconnected{Reason: "EOF"},
		event.Reconnecting{Attempt: 1},
		event.ReconnectFailed{Attempts: 5},
		event.Unknown{Event: "chat:typing"},
		event.NewMessage{},
	} {
		req.NoError(sink.Consume(context.Background(), evt))
	}
}
