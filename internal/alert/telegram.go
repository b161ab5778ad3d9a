package alert

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes operator alerts to a Telegram chat. It exists for the one
// failure mode that needs a human: a debit that errored after the provider
// call already succeeded.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

func NewNotifier(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID, log: log}, nil
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	n.log.Info("operator alert sent", "chat_id", n.chatID)
	return nil
}
