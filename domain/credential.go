package domain

import "strings"

// Credential is the opaque bearer token of the current session.
// An empty credential means no session.
type Credential string

func (c Credential) Empty() bool {
	return strings.TrimSpace(string(c)) == ""
}

func (c Credential) Bearer() string {
	return "Bearer " + string(c)
}
