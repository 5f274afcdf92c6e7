// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "strings"

type Participant struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (p Participant) Name() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	return p.Email
}
