package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Notifier delivers alerts to a single Telegram chat. Constructed without a
// token it is disabled: sends return nil so the callers' queue bookkeeping
// proceeds unchanged.
type Notifier struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// New creates the notifier. An empty token yields a disabled notifier, not
// an error.
func New(token string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	n := &Notifier{
		chatID: chatID,
		logger: logger.With("component", "telegram"),
	}
	if token == "" {
		n.logger.Info("telegram notifications disabled, no token configured")
		return n, nil
	}

	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	n.bot = b
	return n, nil
}

// Enabled reports whether the notifier will actually send.
func (n *Notifier) Enabled() bool { return n.bot != nil }

// SendImmediate sends a single alert message.
func (n *Notifier) SendImmediate(ctx context.Context, text string) error {
	return n.send(ctx, text)
}

// SendDigest sends a digest message. Same transport as immediate alerts;
// the distinction is who calls it and when.
func (n *Notifier) SendDigest(ctx context.Context, text string) error {
	return n.send(ctx, text)
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.bot == nil {
		n.logger.Debug("notification suppressed, telegram disabled")
		return nil
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
