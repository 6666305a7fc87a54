package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured is returned by Unavailable for every call.
var ErrNotConfigured = errors.New("llm provider not configured")

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// Unavailable stands in when no provider credentials are configured.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, []Message) (Response, error) {
	return Response{}, ErrNotConfigured
}
