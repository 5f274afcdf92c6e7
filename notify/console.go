// Package notify shows notices and chat messages on a terminal.
package notify

import (
	"chat-link/domain"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gookit/color"
)

var styles = map[domain.NoticeLevel]color.Style{
	domain.INFO:    color.New(color.FgCyan),
	domain.WARNING: color.New(color.FgYellow, color.OpBold),
	domain.ERROR:   color.New(color.FgRed, color.OpBold),
}

var (
	authorStyle = color.New(color.FgGreen, color.OpBold)
	systemStyle = color.New(color.FgGray, color.OpItalic)
)

// Console writes to out, colours are only used when enabled.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
}

func NewConsole(out io.Writer, colours bool) *Console {
	return &Console{out: out, colours: colours}
}

func (c *Console) Notify(notice domain.Notice) {
	line := fmt.Sprintf("[%s] %s", notice.Level, notice.Message)
	if style, ok := styles[notice.Level]; ok {
		line = c.render(style, line)
	}
	c.println(line)
}

// Message prints one chat line, system messages apart.
func (c *Console) Message(message domain.Message) {
	at := message.CreatedAt.Local().Format(time.TimeOnly)
	if message.IsSystem {
		c.println(c.render(systemStyle, fmt.Sprintf("[%s] * %s", at, message.Content)))
		return
	}
	author := c.render(authorStyle, message.Author())
	c.println(fmt.Sprintf("[%s] %s: %s", at, author, message.Content))
}

func (c *Console) render(style color.Style, text string) string {
	if !c.colours {
		return text
	}
	return style.Render(text)
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}
