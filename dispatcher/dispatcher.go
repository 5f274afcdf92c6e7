// Package dispatcher sends outgoing chat messages and keeps the received ones
// in an ordered thread scoped to the current conversation.
//
// Delivery is at-most-once: nothing is acknowledged, retried or queued.
package dispatcher

import (
	"chat-link/contract"
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/errors"
	"chat-link/projection"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Link reports which delivery path is available right now.
type Link interface {
	State() domain.LinkState
}

type Path string

const (
	CHANNEL Path = "CHANNEL"
	REST    Path = "REST"
)

// Delivery tells how a message left the client. Conversation is only set
// on the REST path, it is the conversation the backend created.
type Delivery struct {
	Path         Path
	Conversation *domain.Conversation
}

type Dispatcher struct {
	log              *slog.Logger
	link             Link
	emitter          contract.Emitter
	api              contract.ConversationAPI
	notifier         contract.Notifier
	codec            event.Codec
	maxContentLength int
	thread           *projection.Thread
	closed           atomic.Bool
}

func New(log *slog.Logger, link Link, emitter contract.Emitter, api contract.ConversationAPI,
	notifier contract.Notifier, codec event.Codec, maxContentLength int) *Dispatcher {
	return &Dispatcher{
		log:              log.With("component", "dispatcher"),
		link:             link,
		emitter:          emitter,
		api:              api,
		notifier:         notifier,
		codec:            codec,
		maxContentLength: maxContentLength,
		thread:           projection.NewThread(),
	}
}

// Send delivers text over the channel when the conversation room is joined,
// otherwise through a single REST submission.
func (d *Dispatcher) Send(ctx context.Context, id domain.ConversationID, text string) (Delivery, error) {
	if d.closed.Load() {
		return Delivery{}, errors.ErrDispatcherClosed
	}
	text = strings.TrimSpace(text)
	if err := d.check(text); err != nil {
		d.notifier.Notify(domain.Notice{Level: domain.WARNING, Message: err.Error()})
		return Delivery{}, err
	}

	switch link := d.link.State().(type) {
	case domain.LinkJoined:
		if id != "" && link.ConversationID == id {
			name, payload := d.codec.SendMessage(id, text)
			if err := d.emitter.Emit(ctx, name, payload); err != nil {
				d.notifier.Notify(domain.Notice{Level: domain.ERROR, Message: "Message not sent"})
				return Delivery{}, fmt.Errorf("send over channel: %w", err)
			}
			d.log.Debug("Message sent over channel", "conversation_id", id)
			return Delivery{Path: CHANNEL}, nil
		}
	case domain.LinkConnecting, domain.LinkDisconnected:
	}
	return d.fallback(ctx, text)
}

func (d *Dispatcher) fallback(ctx context.Context, text string) (Delivery, error) {
	conversation, err := d.api.StartConversation(ctx, text)
	if err != nil {
		d.notifier.Notify(domain.Notice{Level: domain.ERROR, Message: "Message not sent"})
		return Delivery{}, fmt.Errorf("send over rest: %w", err)
	}
	d.log.Info("Message sent over rest", "conversation_id", conversation.ID)
	return Delivery{Path: REST, Conversation: &conversation}, nil
}

func (d *Dispatcher) check(text string) error {
	if err := validate.Var(text, "required"); err != nil {
		return errors.ErrEmptyMessage
	}
	if d.maxContentLength > 0 {
		if err := validate.Var(text, fmt.Sprintf("max=%d", d.maxContentLength)); err != nil {
			return errors.ErrMessageTooLong
		}
	}
	return nil
}

// Scope points the thread at a conversation, seeded with its known history.
func (d *Dispatcher) Scope(id domain.ConversationID, history []domain.Message) {
	if d.closed.Load() {
		return
	}
	d.thread.Reset(id, history)
}

func (d *Dispatcher) ConversationID() domain.ConversationID {
	return d.thread.ConversationID()
}

func (d *Dispatcher) Messages() []domain.Message {
	return d.thread.Messages()
}

func (d *Dispatcher) Consume(ctx context.Context, e event.ServerEvent) error {
	if d.closed.Load() {
		return nil
	}
	return d.thread.Consume(ctx, e)
}

// Close freezes the thread, later events and sends are dropped.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
}
