package repositories

import (
	"chat-link/domain"
	"chat-link/errors"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const conversationPrefix = "conv:"

type IConversationRepository interface {
	StoreConversation(conversation domain.Conversation) error
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
	ListConversations() ([]domain.Conversation, error)
	ObserveMessage(message domain.Message) (bool, error)
}

// ConversationRepository is the local read-through copy of backend conversations.
// Entries expire after ttl, a zero ttl keeps them until overwritten.
type ConversationRepository struct {
	db            *badger.DB
	log           *slog.Logger
	ttl           time.Duration
	limitMessages *int
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, ttl time.Duration, limitMessages *int) ConversationRepository {
	return ConversationRepository{db: db, log: log, ttl: ttl, limitMessages: limitMessages}
}

// OpenDB opens badger on path, or in memory when path is empty.
func OpenDB(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path)
	if path == "" {
		options = options.WithInMemory(true)
	}
	return badger.Open(options.WithLoggingLevel(badger.ERROR))
}

// StoreConversation persists a conversation under "conv:{id}".
// Only the most recent limitMessages messages are kept.
func (r ConversationRepository) StoreConversation(conversation domain.Conversation) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return r.set(txn, conversation)
	})
}

func (r ConversationRepository) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := get(txn, id)
		conversation = found
		return err
	})
	return conversation, err
}

// ListConversations returns every cached conversation, most recent activity first.
// Conversations without any message come last.
func (r ConversationRepository) ListConversations() ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(conversationPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var conversation domain.Conversation
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &conversation)
			})
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(conversations, func(a, b domain.Conversation) int {
		switch {
		case a.LastMessageAt == nil && b.LastMessageAt == nil:
			return 0
		case a.LastMessageAt == nil:
			return 1
		case b.LastMessageAt == nil:
			return -1
		default:
			return b.LastMessageAt.Compare(*a.LastMessageAt)
		}
	})
	return conversations, nil
}

// ObserveMessage appends a pushed message to its cached conversation.
// It reports false when the conversation is not cached, nothing is stored then.
func (r ConversationRepository) ObserveMessage(message domain.Message) (bool, error) {
	observed := false
	err := r.db.Update(func(txn *badger.Txn) error {
		conversation, err := get(txn, message.ConversationID)
		if goerrors.Is(err, errors.ErrConversationAbsent) {
			return nil
		}
		if err != nil {
			return err
		}
		conversation.Observe(message)
		observed = true
		return r.set(txn, conversation)
	})
	if observed {
		r.log.Debug("Cached conversation refreshed", "conversation_id", message.ConversationID)
	}
	return observed, err
}

func (r ConversationRepository) set(txn *badger.Txn, conversation domain.Conversation) error {
	if r.limitMessages != nil && len(conversation.Messages) > *r.limitMessages {
		conversation.Messages = conversation.Messages[len(conversation.Messages)-*r.limitMessages:]
	}
	bytes, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	entry := badger.NewEntry(key(conversation.ID), bytes)
	if r.ttl > 0 {
		entry = entry.WithTTL(r.ttl)
	}
	return txn.SetEntry(entry)
}

func get(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	item, err := txn.Get(key(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return conversation, errors.ErrConversationAbsent
	}
	if err != nil {
		return conversation, err
	}
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &conversation)
	})
	return conversation, err
}

func key(id domain.ConversationID) []byte {
	return []byte(conversationPrefix + string(id))
}
