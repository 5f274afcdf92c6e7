package main

import (
	"chat-link/domain"
	"chat-link/domain/event"
	"chat-link/notify"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// printer shows the messages of the open conversation as they arrive.
type printer struct {
	console *notify.Console
	current func() domain.ConversationID
}

func newPrinter(console *notify.Console) *printer {
	return &printer{console: console, current: func() domain.ConversationID { return "" }}
}

func (p *printer) Consume(_ context.Context, e event.ServerEvent) error {
	switch evt := e.(type) {
	case event.NewMessage:
		id := evt.Message.ConversationID
		if id == "" || id == p.current() {
			p.console.Message(evt.Message)
		}
	case event.ConversationJoined:
		if evt.ConversationID == p.current() {
			p.console.Notify(domain.Notice{Level: domain.INFO, Message: "Joined conversation " + string(evt.ConversationID)})
		}
	}
	return nil
}

func (p *printer) history(messages []domain.Message) {
	for _, message := range messages {
		p.console.Message(message)
	}
}

func writeConversations(w io.Writer, conversations []domain.Conversation) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Status", "Last message", "Participants", "Messages"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, c := range conversations {
		last := "-"
		if c.LastMessageAt != nil {
			last = c.LastMessageAt.Local().Format(time.DateTime)
		}
		participants := lo.Map(c.Participants, func(p domain.Participant, _ int) string { return p.Name() })
		table.Append([]string{
			string(c.ID),
			string(c.Status),
			last,
			strings.Join(lo.Compact(participants), ", "),
			strconv.Itoa(len(c.Messages)),
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d conversation(s)\n", len(conversations))
}
