package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	// MaxMessageLen is the Bot API limit, counted in characters.
	MaxMessageLen = 4096
)

type Telegram struct {
	endpoint string
	chatID   string
	client   *http.Client
}

func NewTelegram(apiBase, token, chatID string, client *http.Client) *Telegram {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultTelegramAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{
		endpoint: apiBase + "/bot" + token + "/sendMessage",
		chatID:   chatID,
		client:   client,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      Render(msg),
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL carries the bot token; keep it out of the error
		return fmt.Errorf("telegram: send failed: %w", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// Render escapes msg for HTML parse mode and truncates it to MaxMessageLen.
func Render(msg Message) string {
	var sb strings.Builder
	if msg.Title != "" {
		sb.WriteString("<b>")
		sb.WriteString(EscapeHTML(msg.Title))
		sb.WriteString("</b>\n\n")
	}
	sb.WriteString(EscapeHTML(msg.Body))
	return truncate(sb.String(), MaxMessageLen)
}

func EscapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := runes[:limit-1]
	// do not leave a dangling entity such as "&am"
	if i := lastIndexRune(cut, '&'); i >= 0 && lastIndexRune(cut[i:], ';') < 0 {
		cut = cut[:i]
	}
	return string(cut) + "…"
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

type redactedError struct {
	msg   string
	cause error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.cause }

func redact(err error) error {
	msg := err.Error()
	if i := strings.Index(msg, "/bot"); i >= 0 {
		end := strings.Index(msg[i:], "/sendMessage")
		if end > 0 {
			msg = msg[:i] + "/bot<redacted>" + msg[i+end:]
		}
	}
	return redactedError{msg: msg, cause: err}
}
