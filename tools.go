//go:build tools
// +build tools

// Package chat_link pins the code generators run by `go generate`
// (mockgen for the contract mocks) so go.mod tracks their version.
package chat_link

import (
	_ "go.uber.org/mock/mockgen"
)
