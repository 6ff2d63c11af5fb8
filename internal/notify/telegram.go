package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram delivers alerts to a Telegram chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// Send posts the alert as a plain-text message.
func (t *Telegram) Send(_ context.Context, a Alert) error {
	var b strings.Builder
	b.WriteString(a.Title)
	if a.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(a.Description)
	}
	if a.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(a.URL)
	}

	msg := tgbotapi.NewMessage(t.chatID, b.String())
	msg.DisableWebPagePreview = a.URL == ""
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
