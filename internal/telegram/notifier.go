package telegram

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageRunes stays below Telegram's 4096 character limit.
const maxMessageRunes = 4000

// Notifier delivers operational reports to the administrator chat.
type Notifier struct {
	s      sender
	chatID int64
}

func NewNotifier(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	log.Printf("🤖 Telegram notifier authorized as @%s", api.Self.UserName)
	return &Notifier{s: botAPISender{api: api}, chatID: chatID}, nil
}

// Notify sends text, split into several messages when it is too long.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		if _, err := n.s.Send(msg); err != nil {
			return fmt.Errorf("send to chat %d: %w", n.chatID, err)
		}
	}
	return nil
}

func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		// prefer breaking at a newline in the second half of the chunk
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
