package sink

import (
	"chat-link/domain/event"
	"chat-link/repositories"
	"context"
	"fmt"
	"log/slog"
)

// CacheSink keeps cached conversations in step with pushed messages.
type CacheSink struct {
	repository repositories.IConversationRepository
	log        *slog.Logger
}

func NewCacheSink(repository repositories.IConversationRepository, log *slog.Logger) CacheSink {
	return CacheSink{repository: repository, log: log}
}

func (c CacheSink) Consume(_ context.Context, e event.ServerEvent) error {
	switch evt := e.(type) {
	case event.NewMessage:
		_, err := c.repository.ObserveMessage(evt.Message)
		return err
	default:
		c.log.Debug(fmt.Sprintf("Not cached event : %s", evt.Name()))
		return nil
	}
}
