package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"asrprep/internal/config"
)

// Notifier delivers short human-readable messages to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Message - title is rendered bold, body as preformatted-safe text.
type Message struct {
	Title string
	Body  string
}

// New returns a Telegram notifier when credentials are configured and a
// no-op otherwise.
func New(cfg config.Notify) Notifier {
	token := strings.TrimSpace(cfg.TelegramToken)
	chatID := strings.TrimSpace(cfg.TelegramChatID)
	if token == "" || chatID == "" {
		return Noop{}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewTelegram(cfg.TelegramAPI, token, chatID, &http.Client{Timeout: timeout})
}

type Noop struct{}

func (Noop) Notify(context.Context, Message) error { return nil }

// Enabled reports whether n actually delivers anywhere.
func Enabled(n Notifier) bool {
	if n == nil {
		return false
	}
	_, noop := n.(Noop)
	return !noop
}
