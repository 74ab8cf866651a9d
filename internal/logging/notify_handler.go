package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"asrprep/internal/notify"
)

// NotifyHandler forwards records at or above its level to a Notifier.
// Delivery is synchronous; failures are written to the fallback writer and
// counted, so they are visible even though slog ignores Handle errors.
type NotifyHandler struct {
	notifier notify.Notifier
	level    slog.Leveler
	timeout  time.Duration
	attrs    []slog.Attr
	groups   []string
	shared   *notifyState
}

type notifyState struct {
	mu       sync.Mutex
	fallback io.Writer
	failures int
}

// NewNotifyHandler returns nil when n does not deliver anywhere.
func NewNotifyHandler(n notify.Notifier, level slog.Leveler, fallback io.Writer) *NotifyHandler {
	if !notify.Enabled(n) {
		return nil
	}
	if fallback == nil {
		fallback = os.Stderr
	}
	return &NotifyHandler{
		notifier: n,
		level:    level,
		timeout:  15 * time.Second,
		shared:   &notifyState{fallback: fallback},
	}
}

func (h *NotifyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *NotifyHandler) Handle(ctx context.Context, record slog.Record) error {
	msg := notify.Message{
		Title: fmt.Sprintf("%s %s", record.Level.String(), record.Time.Format("2006-01-02 15:04:05")),
		Body:  h.format(record),
	}

	// the caller's context may already be cancelled when an error is logged
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	if err := h.notifier.Notify(sendCtx, msg); err != nil {
		h.shared.mu.Lock()
		h.shared.failures++
		fmt.Fprintf(h.shared.fallback, "notification delivery failed: %v\n", err)
		h.shared.mu.Unlock()
		return err
	}
	return nil
}

// Failures returns how many deliveries failed so far.
func (h *NotifyHandler) Failures() int {
	if h == nil {
		return 0
	}
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	return h.shared.failures
}

func (h *NotifyHandler) format(record slog.Record) string {
	var sb strings.Builder
	sb.WriteString(record.Message)

	prefix := strings.Join(h.groups, ".")
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		fmt.Fprintf(&sb, "\n%s: %s", key, a.Value.Resolve().String())
	}
	for _, a := range h.attrs {
		write(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	return sb.String()
}

func (h *NotifyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *NotifyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}
