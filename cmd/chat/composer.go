package main

import (
	"bufio"
	"chat-link/domain"
	"chat-link/errors"
	"chat-link/session"
	"context"
	goerrors "errors"
	"io"
	"log/slog"
	"strings"
)

// composer sends each line typed by the user. Lines starting with '/' are commands.
type composer struct {
	log     *slog.Logger
	lines   <-chan string
	session *session.Session
	printer *printer
	quit    context.CancelFunc
}

func newComposer(log *slog.Logger, in io.Reader, sess *session.Session, printer *printer, quit context.CancelFunc) *composer {
	return &composer{log: log, lines: readLines(in), session: sess, printer: printer, quit: quit}
}

// readLines reads in on its own goroutine so that Run can stop on ctx.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (c *composer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-c.lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				c.quit()
				return nil
			}
			c.handle(ctx, line)
		}
	}
}

func (c *composer) handle(ctx context.Context, line string) {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch command {
	case "/open":
		if _, err := c.session.Open(ctx, domain.ConversationID(strings.TrimSpace(arg))); err != nil {
			c.printer.console.Notify(domain.Notice{Level: domain.ERROR, Message: err.Error()})
			return
		}
		c.printer.history(c.session.Recent(historySize))
	case "/history":
		c.printer.history(c.session.Recent(historySize))
	default:
		delivery, err := c.session.Send(ctx, line)
		switch {
		case err == nil:
			c.log.Debug("Message delivered", "path", delivery.Path)
		case goerrors.Is(err, errors.ErrEmptyMessage), goerrors.Is(err, errors.ErrMessageTooLong):
			// already shown as a notice
		default:
			c.log.Warn("Message not sent", "error", err)
		}
	}
}
