package workers

import (
	"chat-link/contract"
	"chat-link/domain/event"
	"context"
	"log/slog"
	"time"
)

// EventFanout hands every channel event to each sink, one after the other,
// in the order the events arrived. It is meant to be the single channel subscriber.
//
// A failing sink never stops the others, its error is only logged.
// Each call gets a context cancelled after sinkTimeout; a sink that ignores
// its context is not interrupted.
type EventFanout struct {
	log         *slog.Logger
	sinkTimeout time.Duration
	sinks       []contract.EventSink
}

func NewEventFanout(log *slog.Logger, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, sinkTimeout: sinkTimeout, sinks: sinks}
}

// Handle matches the channel handler signature.
func (w *EventFanout) Handle(evt event.ServerEvent) {
	w.Fanout(context.Background(), evt)
}

// Fanout One sink after the other for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.ServerEvent) {
	for _, sink := range w.sinks {
		w.consume(ctx, sink, evt)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.ServerEvent) {
	if w.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.sinkTimeout)
		defer cancel()
	}
	if err := sink.Consume(ctx, evt); err != nil {
		w.log.Warn("Sink failed", "event", evt.Name(), "error", err)
	}
}
