// Package chat defines conversation types and the generative-text backend
// interface. Backends: OpenAI chat completions and Google Gemini.
package chat

import (
	"context"
	"time"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message in a conversation history. Immutable once appended.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// UserTurn builds a user turn stamped with the current time.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantTurn builds an assistant turn stamped with the current time.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// Generator produces an assistant reply for a conversation history whose
// last turn is the pending user message.
type Generator interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// GenerateFunc adapts a function to the Generator interface.
type GenerateFunc func(ctx context.Context, turns []Turn) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, turns []Turn) (string, error) {
	return f(ctx, turns)
}
