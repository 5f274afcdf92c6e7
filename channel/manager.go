package channel

import (
	"chat-link/domain"
	"chat-link/errors"
	"chat-link/transport"
	"context"
	"log/slog"
)

// Manager opens channels for a credential. It does not prevent two live channels,
// the owner of the credential is expected to close before opening again.
type Manager struct {
	log     *slog.Logger
	dialers []transport.Dialer
	opts    Options
}

func NewManager(log *slog.Logger, dialers []transport.Dialer, opts Options) *Manager {
	return &Manager{log: log, dialers: dialers, opts: opts}
}

// Open starts connecting in the background and returns immediately.
// The handler is subscribed before the first frame is read so no lifecycle signal is missed.
func (m *Manager) Open(ctx context.Context, credential domain.Credential, handler Handler) (*Channel, error) {
	c, err := m.New(ctx, credential)
	if err != nil {
		return nil, err
	}
	if handler != nil {
		if _, err = c.Subscribe(handler); err != nil {
			return nil, err
		}
	}
	c.Start()
	return c, nil
}

// New returns an idle channel, nothing is dialed until Start.
func (m *Manager) New(ctx context.Context, credential domain.Credential) (*Channel, error) {
	if credential.Empty() {
		return nil, errors.ErrMissingCredential
	}
	return newChannel(ctx, m.log, credential, m.dialers, m.opts), nil
}

func (m *Manager) Close(c *Channel) {
	if c == nil {
		return
	}
	c.Close()
}
