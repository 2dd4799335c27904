package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Telegram sends messages to a single chat via the Bot API.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewTelegram builds a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	if logger == nil {
		logger = slog.Default().With("component", "notify")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, logger: logger}, nil
}

// Notify sends the message to the configured chat.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	t.logger.Debug("telegram notification sent", "chat_id", t.chatID)
	return nil
}
