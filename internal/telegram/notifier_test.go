package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func TestNotify(t *testing.T) {
	fs := &fakeSender{}
	n := &Notifier{s: fs, chatID: 99}

	if err := n.Notify(context.Background(), "relatório"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0].ChatID != 99 || fs.sent[0].Text != "relatório" {
		t.Fatalf("unexpected messages: %+v", fs.sent)
	}
}

func TestNotifySplitsLongText(t *testing.T) {
	fs := &fakeSender{}
	n := &Notifier{s: fs, chatID: 1}
	line := strings.Repeat("a", 99) + "\n"
	text := strings.Repeat(line, 90) // 9000 runes

	if err := n.Notify(context.Background(), text); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(fs.sent) != 3 {
		t.Fatalf("want 3 parts, got %d", len(fs.sent))
	}
	var joined strings.Builder
	for _, m := range fs.sent {
		if len([]rune(m.Text)) > maxMessageRunes {
			t.Fatalf("part too long: %d", len([]rune(m.Text)))
		}
		joined.WriteString(m.Text)
	}
	if joined.String() != text {
		t.Fatalf("parts do not reassemble the original text")
	}
}

func TestNotifyError(t *testing.T) {
	n := &Notifier{s: &fakeSender{err: errors.New("forbidden")}, chatID: 1}
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}
