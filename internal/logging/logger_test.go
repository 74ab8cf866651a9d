package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"asrprep/internal/notify"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("partition prepared", slog.String("partition", "core"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["level"] != "info" || entry["msg"] != "partition prepared" || entry["partition"] != "core" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestNewAutoFormatIsJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("x")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}

func TestNewWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, closer, err := New(Options{Format: "console", Dir: dir, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("disk nearly full")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, "asrprep.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "disk nearly full") || !strings.Contains(buf.String(), "disk nearly full") {
		t.Fatalf("expected message in both sinks")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestNotifyHandlerForwardsAboveLevel(t *testing.T) {
	n := &recordingNotifier{}
	h := NewNotifyHandler(n, slog.LevelInfo, &bytes.Buffer{})

	var base bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewJSONHandler(&base, nil)), h)
	logger = logger.With(slog.String("run_id", "r1"))

	logger.Debug("ignored")
	logger.Info("30% done", slog.Int("groups", 7))

	if len(n.msgs) != 1 {
		t.Fatalf("expected one notification, got %d", len(n.msgs))
	}
	body := n.msgs[0].Body
	if !strings.Contains(body, "30% done") || !strings.Contains(body, "run_id: r1") || !strings.Contains(body, "groups: 7") {
		t.Fatalf("unexpected body %q", body)
	}
	if !strings.Contains(base.String(), "30% done") {
		t.Fatal("base handler should still receive the record")
	}
}

func TestNotifyHandlerReportsFailures(t *testing.T) {
	n := &recordingNotifier{err: errors.New("network down")}
	var fallback bytes.Buffer
	h := NewNotifyHandler(n, slog.LevelWarn, &fallback)
	logger := slog.New(h)

	logger.Error("partition failed")

	if h.Failures() != 1 {
		t.Fatalf("expected 1 failure, got %d", h.Failures())
	}
	if !strings.Contains(fallback.String(), "network down") {
		t.Fatalf("failure not reported: %q", fallback.String())
	}
}

func TestNewNotifyHandlerNilForNoop(t *testing.T) {
	if h := NewNotifyHandler(notify.Noop{}, slog.LevelInfo, nil); h != nil {
		t.Fatal("expected nil handler for noop notifier")
	}
}

func TestFanoutHandlerSingleAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
	if h := newFanoutHandler(); h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("empty fanout should discard")
	}
}
