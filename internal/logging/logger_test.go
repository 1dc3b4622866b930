package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestConsoleHandlerOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(buf, levelVar))

	logger = logger.With(String(FieldComponent, "gateway"))
	logger.Info("session joined",
		String(FieldClientID, "client-1"),
		Int("count", 3),
		Duration("elapsed", 1500*time.Millisecond))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO gateway: session joined") {
		t.Errorf("line = %q", line)
	}
	for _, want := range []string{"client_id=client-1", "count=3", "elapsed=1.5s"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(newConsoleHandler(buf, new(slog.LevelVar)))
	logger.Warn("odd values",
		String("spaced", "two words"),
		String("empty", ""),
		Error(errors.New("dial failed")))

	line := buf.String()
	if !strings.Contains(line, `spaced="two words"`) {
		t.Errorf("spaced value not quoted: %q", line)
	}
	if !strings.Contains(line, `empty=""`) {
		t.Errorf("empty value not quoted: %q", line)
	}
	if !strings.Contains(line, `error="dial failed"`) {
		t.Errorf("error attr missing: %q", line)
	}
}

func TestConsoleHandlerGroupPrefix(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(newConsoleHandler(buf, new(slog.LevelVar)))
	logger.WithGroup("delivery").Info("done", Int("attempts", 2))

	if !strings.Contains(buf.String(), "delivery.attempts=2") {
		t.Errorf("group prefix missing: %q", buf.String())
	}
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(buf, levelVar))

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing")
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(newJSONHandler(buf, new(slog.LevelVar)))
	logger.Error("delivery failed", String(FieldAction, "create_ticket"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["level"] != "error" {
		t.Errorf("level = %v", record["level"])
	}
	if record["msg"] != "delivery failed" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record[FieldAction] != "create_ticket" {
		t.Errorf("action = %v", record[FieldAction])
	}
	if _, ok := record["ts"].(string); !ok {
		t.Errorf("ts missing or not a string: %v", record["ts"])
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fieldlinkd.log")
	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hello")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"hello"`) {
		t.Errorf("log file content = %q", raw)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("unknown format should be rejected")
	}
}
