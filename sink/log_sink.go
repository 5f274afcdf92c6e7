package sink

import (
	"chat-link/domain/event"
	"context"
	"log/slog"
)

// LogSink writes the channel lifecycle to the log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (l LogSink) Consume(_ context.Context, e event.ServerEvent) error {
	switch evt := e.(type) {
	case event.Connect:
		l.log.Info("Socket connected", "sid", evt.SID, "transport", evt.Transport)
	case event.Connected:
		if user, ok := evt.User(); ok {
			l.log.Info("Session greeted", "user_id", user.ID, "role", user.Role)
		}
	case event.ConnectError:
		l.log.Warn("Socket connection error", "message", evt.Message, "refused", evt.Refused)
	case event.Disconnected:
		l.log.Warn("Socket disconnected", "reason", evt.Reason, "final", evt.Final)
	case event.Reconnecting:
		l.log.Info("Socket reconnecting", "attempt", evt.Attempt)
	case event.ReconnectFailed:
		l.log.Error("Socket reconnection failed", "attempts", evt.Attempts)
	case event.Unknown:
		l.log.Debug("Unhandled event", "event", evt.Event, "args", len(evt.Args))
	}
	return nil
}
