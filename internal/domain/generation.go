package domain

import "context"

// Chat roles understood by the generative service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a generation prompt.
type Message struct {
	Role    string
	Content string
}

// GenerationRequest is a prompt plus a label used for metrics and logs (chat, summarize).
type GenerationRequest struct {
	Operation string
	Messages  []Message
}

// Generator is the downstream generative text service.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
