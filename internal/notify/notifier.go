// Package notify delivers best-effort direct messages to players. Every
// send is a single attempt with no retry and no delivery guarantee; callers
// are expected to ignore failures.
package notify

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends a direct message to a player.
type Notifier interface {
	Send(ctx context.Context, playerID int64, text string) error
}

// Telegram delivers messages through the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram constructs a notifier from a bot token.
func NewTelegram(token string) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("notify: bot token required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot}, nil
}

// Send pushes one message. Blocked bots and closed chats surface as errors
// the caller should swallow.
func (t *Telegram) Send(_ context.Context, playerID int64, text string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(playerID, text))
	return err
}

// Nop discards every message. Used in tests and when no bot is configured.
type Nop struct{}

// Send does nothing.
func (Nop) Send(context.Context, int64, string) error {
	return nil
}
