// Package session owns the live channel of the signed-in user and wires it
// to the room controller, the dispatcher and the local cache.
//
// At most one channel is open at a time: on credential change the current
// channel is closed before the next one is opened.
package session

import (
	"chat-link/auth"
	"chat-link/channel"
	"chat-link/contract"
	"chat-link/dispatcher"
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/errors"
	"chat-link/repositories"
	"chat-link/room"
	"chat-link/runtime/workers"
	"chat-link/sink"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Opener builds idle channels, channel.Manager is the production one.
type Opener interface {
	New(ctx context.Context, credential domain.Credential) (*channel.Channel, error)
}

type Options struct {
	Codec            event.Codec
	MaxContentLength int
	SinkTimeout      time.Duration
}

type Session struct {
	log      *slog.Logger
	opener   Opener
	api      contract.ConversationAPI
	cache    repositories.IConversationRepository
	notifier contract.Notifier

	room       *room.Controller
	dispatcher *dispatcher.Dispatcher
	fanout     *workers.EventFanout

	// switchMu serializes credential changes, mu guards the fields below.
	// A channel is never closed while mu is held: its handler may need mu to emit.
	switchMu   sync.Mutex
	mu         sync.Mutex
	credential domain.Credential
	channel    *channel.Channel
	current    domain.ConversationID
	closed     bool
}

// New wires a session. Extra sinks receive every channel event after the built-in ones.
func New(log *slog.Logger, opener Opener, api contract.ConversationAPI, cache repositories.IConversationRepository,
	notifier contract.Notifier, opts Options, extra ...contract.EventSink) *Session {
	s := &Session{
		log:      log.With("component", "session"),
		opener:   opener,
		api:      api,
		cache:    cache,
		notifier: notifier,
	}
	s.room = room.NewController(log, s, notifier, opts.Codec)
	s.dispatcher = dispatcher.New(log, s.room, s, api, notifier, opts.Codec, opts.MaxContentLength)

	sinks := []contract.EventSink{s.room, s.dispatcher, sink.NewCacheSink(cache, log), sink.NewLogSink(log)}
	s.fanout = workers.NewEventFanout(log, opts.SinkTimeout, append(sinks, extra...)...)
	return s
}

// SetCredential follows the session credential. The same credential is a no-op
// unless its channel gave up, an empty one only closes the current channel.
// The channel lives until the next change, Close, or the end of ctx.
func (s *Session) SetCredential(ctx context.Context, credential domain.Credential) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrChannelClosed
	}
	if credential == s.credential && (live(s.channel) || credential.Empty()) {
		s.mu.Unlock()
		return nil
	}
	previous := s.channel
	s.channel = nil
	s.credential = credential
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
		s.room.Detach()
		s.log.Info("Previous channel closed", "channel", previous.ID.String())
	}
	if credential.Empty() {
		return nil
	}
	s.warnIfExpired(credential)

	next, err := s.opener.New(ctx, credential)
	if err != nil {
		return err
	}
	if _, err = next.Subscribe(s.fanout.Handle); err != nil {
		next.Close()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		next.Close()
		return errors.ErrChannelClosed
	}
	s.channel = next
	s.mu.Unlock()

	next.Start()
	return nil
}

func live(c *channel.Channel) bool {
	if c == nil {
		return false
	}
	select {
	case <-c.Done():
		return false
	default:
		return true
	}
}

func (s *Session) warnIfExpired(credential domain.Credential) {
	claims, err := auth.Inspect(credential)
	if err != nil {
		s.log.Debug("Opaque credential", "error", err)
		return
	}
	if claims.Expired(time.Now()) {
		s.log.Warn("Credential expired", "user_id", claims.Subject())
		s.notifier.Notify(domain.Notice{Level: domain.WARNING, Message: "Your session has expired, please sign in again"})
	}
}

// Emit writes on the current channel.
func (s *Session) Emit(ctx context.Context, name string, payload any) error {
	s.mu.Lock()
	current := s.channel
	s.mu.Unlock()
	if current == nil {
		return errors.ErrNotConnected
	}
	return current.Emit(ctx, name, payload)
}

// Open shows a conversation: its history is read from the cache, or fetched and cached,
// then the thread is scoped to it and its room joined.
func (s *Session) Open(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if id == "" {
		return domain.Conversation{}, errors.ErrNoConversation
	}
	conversation, err := s.conversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Conversation{}, errors.ErrChannelClosed
	}
	s.current = id
	s.mu.Unlock()

	s.dispatcher.Scope(id, conversation.Messages)
	if err = s.room.Join(ctx, id); err != nil {
		return conversation, err
	}
	return conversation, nil
}

func (s *Session) conversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	cached, err := s.cache.GetConversation(id)
	switch {
	case err == nil && cached.HistoryLoaded:
		return cached, nil
	case err == nil:
		s.log.Debug("Cached summary only, fetching history", "conversation_id", id)
	case !goerrors.Is(err, errors.ErrConversationAbsent):
		s.log.Warn("Cache read failed", "conversation_id", id, "error", err)
	}

	fetched, err := s.api.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	fetched.HistoryLoaded = true
	if err = s.cache.StoreConversation(fetched); err != nil {
		s.log.Warn("Cache write failed", "conversation_id", id, "error", err)
	}
	return fetched, nil
}

// Send dispatches text for the open conversation. When it went through the rest api,
// the conversation created by the backend becomes the open one.
func (s *Session) Send(ctx context.Context, text string) (dispatcher.Delivery, error) {
	delivery, err := s.dispatcher.Send(ctx, s.Current(), text)
	if err != nil || delivery.Conversation == nil {
		return delivery, err
	}

	created := *delivery.Conversation
	created.HistoryLoaded = true
	if err = s.cache.StoreConversation(created); err != nil {
		s.log.Warn("Cache write failed", "conversation_id", created.ID, "error", err)
	}
	if _, err = s.Open(ctx, created.ID); err != nil {
		return delivery, err
	}
	return delivery, nil
}

// Conversations lists the conversations of the user and refreshes the cache.
// When the backend cannot be reached the cached list is returned with a notice.
func (s *Session) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	fetched, err := s.api.MyConversations(ctx)
	if err != nil {
		cached, cacheErr := s.cache.ListConversations()
		if cacheErr != nil || len(cached) == 0 {
			return nil, err
		}
		s.log.Warn("Conversations served from cache", "error", err)
		s.notifier.Notify(domain.Notice{Level: domain.WARNING, Message: "Showing saved conversations"})
		return cached, nil
	}

	for _, conversation := range fetched {
		if err = s.cache.StoreConversation(s.merge(conversation)); err != nil {
			s.log.Warn("Cache write failed", "conversation_id", conversation.ID, "error", err)
		}
	}
	return fetched, nil
}

// merge refreshes the summary of a listed conversation. A history already loaded
// is kept, otherwise the copy stays a summary and Open fetches the history.
func (s *Session) merge(listed domain.Conversation) domain.Conversation {
	listed.HistoryLoaded = false
	cached, err := s.cache.GetConversation(listed.ID)
	if err != nil || !cached.HistoryLoaded {
		return listed
	}
	listed.Messages = cached.Messages
	listed.HistoryLoaded = true
	return listed
}

func (s *Session) Current() domain.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Messages() []domain.Message {
	return s.dispatcher.Messages()
}

func (s *Session) Link() domain.LinkState {
	return s.room.State()
}

func (s *Session) Health() domain.SessionHealth {
	s.mu.Lock()
	current, ch := s.current, s.channel
	s.mu.Unlock()

	state := "NONE"
	if ch != nil {
		state = ch.State().String()
	}
	return domain.SessionHealth{
		ChannelState:   state,
		Link:           s.room.State(),
		ConversationID: current,
		Messages:       len(s.dispatcher.Messages()),
	}
}

// Recent returns the last n messages of the open conversation.
func (s *Session) Recent(n int) []domain.Message {
	if n <= 0 {
		return nil
	}
	return lo.Subset(s.dispatcher.Messages(), -n, uint(n))
}

// Close tears the session down, once it returns no event reaches the thread anymore.
func (s *Session) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	current := s.channel
	s.channel = nil
	s.mu.Unlock()

	if current != nil {
		current.Close()
	}
	s.dispatcher.Close()
	s.room.Detach()
	s.log.Info("Session closed")
}
