package repositories

import (
	"chat-link/domain"
	"chat-link/errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := OpenDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Store_And_Get_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openDB(t), slog.Default(), 0, nil)
	at := time.Now().UTC().Truncate(time.Second)
	conversation := domain.Conversation{
		ID:            "c-1",
		Status:        domain.ACTIVE,
		LastMessageAt: &at,
		Participants:  []domain.Participant{{ID: "u-1", Email: "admin@needhomes.ng"}},
		Messages:      []domain.Message{{ID: "m-1", ConversationID: "c-1", Content: "hello", CreatedAt: at}},
	}

	req.NoError(repository.StoreConversation(conversation))
	fetched, err := repository.GetConversation("c-1")

	req.NoError(err)
	req.Equal(conversation.ID, fetched.ID)
	req.Equal(conversation.Participants, fetched.Participants)
	req.True(at.Equal(*fetched.LastMessageAt))
	req.Len(fetched.Messages, 1)
}

func Test_Get_Absent_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openDB(t), slog.Default(), 0, nil)

	_, err := repository.GetConversation("missing")

	req.ErrorIs(err, errors.ErrConversationAbsent)
}

func Test_List_Conversations_Most_Recent_First(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openDB(t), slog.Default(), 0, nil)
	at := time.Now().UTC()
	conversations := []domain.Conversation{
		{ID: "old", LastMessageAt: lo.ToPtr(at.Add(-time.Hour))},
		{ID: "empty"},
		{ID: "recent", LastMessageAt: lo.ToPtr(at)},
	}
	for _, c := range conversations {
		req.NoError(repository.StoreConversation(c))
	}

	listed, err := repository.ListConversations()

	req.NoError(err)
	req.Equal([]domain.ConversationID{"recent", "old", "empty"},
		lo.Map(listed, func(c domain.Conversation, _ int) domain.ConversationID { return c.ID }))
}

func Test_Observe_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewConversationRepository(openDB(t), slog.Default(), 0, &limit)
	req.NoError(repository.StoreConversation(domain.Conversation{ID: "c-1"}))
	at := time.Now().UTC()

	for i, author := range []string{"Alice", "Bob", "Clara"} {
		observed, err := repository.ObserveMessage(domain.Message{
			ID:             fmt.Sprintf("m-%d", i),
			ConversationID: "c-1",
			SenderID:       author,
			CreatedAt:      at.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
		req.True(observed)
	}

	fetched, err := repository.GetConversation("c-1")
	req.NoError(err)
	req.Len(fetched.Messages, limit)
	req.Equal("Bob", fetched.Messages[0].SenderID)
	req.Equal("Clara", fetched.Messages[1].SenderID)
	req.True(at.Add(2 * time.Minute).Equal(*fetched.LastMessageAt))

	// A message for a conversation never fetched is not cached
	observed, err := repository.ObserveMessage(domain.Message{ID: "x", ConversationID: "c-2"})
	req.NoError(err)
	req.False(observed)
}
