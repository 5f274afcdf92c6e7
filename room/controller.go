// Package room keeps the channel joined to the conversation the user is looking at.
// Membership is ephemeral: it is requested again after every reconnection and
// abandoned implicitly when the channel goes away.
package room

import (
	"chat-link/contract"
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/errors"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
)

type Controller struct {
	log      *slog.Logger
	emitter  contract.Emitter
	notifier contract.Notifier
	codec    event.Codec

	mu        sync.Mutex
	target    domain.ConversationID
	connected bool
	state     domain.LinkState
}

func NewController(log *slog.Logger, emitter contract.Emitter, notifier contract.Notifier, codec event.Codec) *Controller {
	return &Controller{
		log:      log.With("component", "room"),
		emitter:  emitter,
		notifier: notifier,
		codec:    codec,
		state:    domain.LinkDisconnected{},
	}
}

func (c *Controller) State() domain.LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Target() domain.ConversationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Join makes id the room to be in. The request goes out now when the channel is
// connected, otherwise on the next Connect. Joining the room already joined is a no-op.
func (c *Controller) Join(ctx context.Context, id domain.ConversationID) error {
	if id == "" {
		return errors.ErrNoConversation
	}

	c.mu.Lock()
	if joined, ok := c.state.(domain.LinkJoined); ok && joined.ConversationID == id {
		c.mu.Unlock()
		return nil
	}
	c.target = id
	connected := c.connected
	if connected {
		c.state = domain.LinkConnecting{}
	}
	c.mu.Unlock()

	if !connected {
		c.log.Debug("Join deferred until connected", "conversation_id", id)
		return nil
	}
	return c.requestJoin(ctx, id)
}

// Leave forgets the target room. Nothing is sent, the server drops membership with the socket.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = ""
	if c.connected {
		c.state = domain.LinkConnecting{}
	} else {
		c.state = domain.LinkDisconnected{}
	}
}

// Detach is called when the channel is replaced. The target is kept for the next one.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.state = domain.LinkDisconnected{}
}

func (c *Controller) Consume(ctx context.Context, e event.ServerEvent) error {
	switch evt := e.(type) {
	case event.Connect:
		c.mu.Lock()
		c.connected = true
		c.state = domain.LinkConnecting{}
		target := c.target
		c.mu.Unlock()
		if target != "" {
			return c.requestJoin(ctx, target)
		}

	case event.ConversationJoined:
		c.mu.Lock()
		defer c.mu.Unlock()
		if evt.ConversationID != c.target {
			c.log.Debug("Confirmation for another room ignored", "conversation_id", evt.ConversationID)
			return nil
		}
		if joined, ok := c.state.(domain.LinkJoined); ok && joined.ConversationID == evt.ConversationID {
			return nil
		}
		c.state = domain.LinkJoined{ConversationID: evt.ConversationID}
		c.log.Info("Conversation joined", "conversation_id", evt.ConversationID)

	case event.DomainError:
		c.log.Warn("Chat error", "message", evt.Message)
		c.notifier.Notify(domain.Notice{Level: domain.WARNING, Message: evt.Message})

	case event.Disconnected:
		c.mu.Lock()
		c.connected = false
		if evt.Final {
			c.state = domain.LinkDisconnected{}
		} else {
			c.state = domain.LinkConnecting{}
		}
		c.mu.Unlock()

	case event.Reconnecting:
		c.mu.Lock()
		c.connected = false
		c.state = domain.LinkConnecting{}
		c.mu.Unlock()

	case event.ConnectError:
		c.mu.Lock()
		c.connected = false
		if evt.Refused {
			c.state = domain.LinkDisconnected{}
		}
		c.mu.Unlock()
		if evt.Refused {
			c.notifier.Notify(domain.Notice{Level: domain.ERROR, Message: fmt.Sprintf("Chat unavailable: %s", evt.Message)})
		}

	case event.ReconnectFailed:
		c.mu.Lock()
		c.connected = false
		c.state = domain.LinkDisconnected{}
		c.mu.Unlock()
		c.notifier.Notify(domain.Notice{Level: domain.ERROR, Message: "Chat connection lost"})
	}
	return nil
}

func (c *Controller) requestJoin(ctx context.Context, id domain.ConversationID) error {
	name, payload := c.codec.JoinConversation(id)
	err := c.emitter.Emit(ctx, name, payload)
	switch {
	case err == nil:
		c.log.Debug("Join requested", "conversation_id", id)
		return nil
	case goerrors.Is(err, errors.ErrNotConnected):
		// the next Connect sends it again
		return nil
	default:
		return fmt.Errorf("join %s: %w", id, err)
	}
}
