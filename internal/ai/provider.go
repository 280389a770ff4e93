package ai

import "context"

// Message is one chat-completion message in provider wire order.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider answers one chat-completion request. Implementations do not
// retry; a failed call is terminal for the turn that issued it.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
