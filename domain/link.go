package domain

// LinkState tells which delivery path is available for outgoing messages.
// Implementations: LinkDisconnected, LinkConnecting, LinkJoined.
type LinkState interface {
	isLinkState()
}

type LinkDisconnected struct{}

type LinkConnecting struct{}

type LinkJoined struct {
	ConversationID ConversationID
}

func (LinkDisconnected) isLinkState() {}
func (LinkConnecting) isLinkState()   {}
func (LinkJoined) isLinkState()       {}
