package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
	tele "gopkg.in/telebot.v3"
)

// TelegramSender is the part of *tele.Bot used for delivery
type TelegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier sends notifications to one Telegram chat. It is disabled
// when no token or chat is configured.
type TelegramNotifier struct {
	sender TelegramSender
	chat   *tele.Chat
}

// NewTelegramNotifier creates an offline bot (no update polling) for sending
// only. An empty token or zero chat id yields a disabled notifier.
func NewTelegramNotifier(token string, chatID int64, timeout time.Duration) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return &TelegramNotifier{}, nil
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramNotifierWithSender(bot, chatID), nil
}

// NewTelegramNotifierWithSender wires an existing sender
func NewTelegramNotifierWithSender(sender TelegramSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chat:   &tele.Chat{ID: chatID},
	}
}

// Enabled reports whether the notifier delivers anything
func (t *TelegramNotifier) Enabled() bool {
	return t.sender != nil && t.chat != nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, n Notification) {
	if !t.Enabled() {
		return
	}
	if _, err := t.sender.Send(t.chat, n.Title+"\n"+n.Body); err != nil {
		logger.NotificationsTotal.WithLabelValues("telegram", "error").Inc()
		logger.WithContext(ctx).Warn("Failed to send telegram notification",
			logger.Int64("chat_id", t.chat.ID),
			logger.String("monitor_id", n.Event.Monitor.ID),
			logger.ErrorField(err),
		)
		return
	}
	logger.NotificationsTotal.WithLabelValues("telegram", "success").Inc()
}
