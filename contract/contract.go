//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-link/domain"
	"chat-link/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes channel events. Sinks are called one after the other,
// in the order the events arrived.
type EventSink interface {
	Consume(ctx context.Context, e event.ServerEvent) error
}

// Emitter writes an event on the live channel.
type Emitter interface {
	Emit(ctx context.Context, name string, payload any) error
}

// Notifier shows transient notices to the user.
type Notifier interface {
	Notify(notice domain.Notice)
}

// ConversationAPI is the request/response side of the chat backend.
type ConversationAPI interface {
	MyConversations(ctx context.Context) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	StartConversation(ctx context.Context, message string) (domain.Conversation, error)
}

// CredentialProvider reads the current session credential.
type CredentialProvider interface {
	Credential(ctx context.Context) (domain.Credential, error)
}

// HealthSource exposes the state of the running session.
type HealthSource interface {
	Health() domain.SessionHealth
}
