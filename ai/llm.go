// Package ai generates thread titles, either through an OpenAI-compatible
// completion API or through the title HTTP endpoint.
package ai

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Chat roles understood by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer turns a message list into a single completion text.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// CleanTitle trims whitespace and surrounding quotes and caps the title at maxRunes.
func CleanTitle(title string, maxRunes int) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'“”‘’`")
	title = strings.TrimSpace(title)
	if maxRunes > 0 && utf8.RuneCountInString(title) > maxRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxRunes]))
	}
	return title
}
