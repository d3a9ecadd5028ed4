// Package domain contains core domain types for the pharmacy chat client.
package domain

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleAssistant is a message from the pharmacy assistant.
	RoleAssistant Role = "assistant"
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"
)

// LegacyPlaceholder is the in-progress text older clients persisted as an
// assistant message. It must never be stored or shown.
const LegacyPlaceholder = "Analyzing medicine, dosage, stock availability, and prescription rules..."

// Message is one transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is one persisted conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that does not share the message slice.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// ParseRole maps stored role names, including the legacy "ai" class name,
// to a Role. Unknown names report false.
func ParseRole(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "assistant", "ai", "bot":
		return RoleAssistant, true
	case "user":
		return RoleUser, true
	default:
		return "", false
	}
}

// SanitizeText returns the text that may be persisted for a message of the
// given role. Assistant placeholder text collapses to "".
func SanitizeText(role Role, text string) string {
	if role == RoleAssistant && strings.TrimSpace(text) == LegacyPlaceholder {
		return ""
	}
	return text
}
