// Package domain contains core domain types for the chat widget session.
package domain

import "strings"

// Role identifies who authored a chat message.
type Role string

const (
	// RoleSystem is the introduction text seeded at session start.
	RoleSystem Role = "system"
	// RoleUser is a message typed or picked by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a reply streamed from the backend.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is one entry of the chat history.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Text    string `json:"text" yaml:"text"`
	IsError bool   `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// IsBlank returns true if text has no content after trimming whitespace.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// HasAssistant returns true if any message in history was authored by the assistant.
func HasAssistant(history []Message) bool {
	for _, m := range history {
		if m.Role == RoleAssistant {
			return true
		}
	}
	return false
}
