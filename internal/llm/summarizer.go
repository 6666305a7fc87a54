package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const summarizerSystemPrompt = "Você é um modelo de linguagem com a tarefa de resumir conversas."

// Summarizer turns a prompt into a condensed text using an LLM client.
type Summarizer struct {
	client Client
}

func NewSummarizer(client Client) *Summarizer {
	return &Summarizer{client: client}
}

func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Generate(ctx, []Message{
		{Role: RoleSystem, Content: summarizerSystemPrompt},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("summarize: empty completion from %s", resp.Model)
	}
	log.Printf("📝 summary generated [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	return text, nil
}
