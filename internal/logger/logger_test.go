package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestFileWriterDefaults(t *testing.T) {
	cfg := Config{File: filepath.Join(t.TempDir(), "supervisor.log")}
	w := cfg.FileWriter()
	defer func() { _ = w.Close() }()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected *lumberjack.Logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
}

func TestFileWriterCustom(t *testing.T) {
	cfg := Config{File: filepath.Join(t.TempDir(), "c.log"), MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 3, Compress: true}
	l := cfg.FileWriter().(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 2 || l.MaxAge != 3 || !l.Compress {
		t.Fatalf("custom values not applied: %+v", l)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "collector.log")
	log, closer, err := New(Config{File: path, Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("scan complete", "critical", 1)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"scan complete"`) || !strings.Contains(string(b), `"critical":1`) {
		t.Fatalf("unexpected file content: %s", b)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestColorTextHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil, false)
	slog.New(h).Warn("rotated")
	out := buf.String()
	// TextHandler quotes control characters.
	if !strings.Contains(out, `\x1b[33mWARN\x1b[0m`) || !strings.Contains(out, "rotated") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFanoutRespectsLevels(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	f := fanout{
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	if !f.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("fanout should be enabled for info")
	}
	l := slog.New(f).With("component", "test")
	l.Info("hello")
	l.Error("boom")
	if !strings.Contains(infoBuf.String(), "hello") || !strings.Contains(infoBuf.String(), "boom") {
		t.Fatalf("info handler missing records: %q", infoBuf.String())
	}
	if strings.Contains(errBuf.String(), "hello") || !strings.Contains(errBuf.String(), "component=test") {
		t.Fatalf("error handler got wrong records: %q", errBuf.String())
	}
}

func TestColorTextHandlerKeepsColorWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false)).With("proc", "worker")
	l.Error("exited")
	out := buf.String()
	if !strings.Contains(out, `\x1b[31mERROR`) || !strings.Contains(out, "proc=worker") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted: %q", out)
	}
}
