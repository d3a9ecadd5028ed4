package session

import (
	"strings"

	"github.com/ashureev/pharma-chat/internal/domain"
)

const (
	// DefaultTitle labels a session with no usable text.
	DefaultTitle   = "New chat"
	maxTitleLength = 40
	titleEllipsis  = "..."
)

// Title derives a display label for s: the first non-empty user message,
// else the first non-empty assistant message, else DefaultTitle.
func Title(s domain.Session) string {
	text := firstText(s.Messages, domain.RoleUser)
	if text == "" {
		text = firstText(s.Messages, domain.RoleAssistant)
	}
	if text == "" {
		return DefaultTitle
	}

	runes := []rune(text)
	if len(runes) <= maxTitleLength {
		return text
	}
	return strings.TrimSpace(string(runes[:maxTitleLength])) + titleEllipsis
}

func firstText(messages []domain.Message, role domain.Role) string {
	for _, m := range messages {
		if m.Role != role {
			continue
		}
		if text := strings.Join(strings.Fields(m.Text), " "); text != "" {
			return text
		}
	}
	return ""
}
