package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_Structural(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{Level: LevelDebug}
	h := NewPrettyHandler(&buf, opts, false)
	l := slog.New(h)

	t.Run("WithAttrs", func(t *testing.T) {
		buf.Reset()
		l2 := l.With("run_id", "abc-123")
		l2.Info("test message", "worker", 3)

		output := buf.String()
		if !strings.Contains(output, "run_id=") || !strings.Contains(output, "abc-123") {
			t.Errorf("output missing persistent attr: %q", output)
		}
		if !strings.Contains(output, "worker=") || !strings.Contains(output, "3") {
			t.Errorf("output missing record attr: %q", output)
		}
	})

	t.Run("WithGroup", func(t *testing.T) {
		buf.Reset()
		l2 := l.WithGroup("batch").With("size", 10)
		l2.Info("batch started", "start", 21)

		output := buf.String()
		if !strings.Contains(output, "batch.size=") || !strings.Contains(output, "10") {
			t.Errorf("output missing grouped persistent attr: %q", output)
		}
		if !strings.Contains(output, "batch.start=") || !strings.Contains(output, "21") {
			t.Errorf("output missing grouped record attr: %q", output)
		}
	})

	t.Run("LevelFiltering", func(t *testing.T) {
		var infoBuf bytes.Buffer
		hi := NewPrettyHandler(&infoBuf, &slog.HandlerOptions{Level: LevelInfo}, false)
		li := slog.New(hi)
		li.Debug("hidden")
		li.Info("visible")

		output := infoBuf.String()
		if strings.Contains(output, "hidden") {
			t.Errorf("debug line leaked at info level: %q", output)
		}
		if !strings.Contains(output, "visible") {
			t.Errorf("info line missing: %q", output)
		}
	})
}

func TestRedactAttr(t *testing.T) {
	tests := []struct {
		name   string
		attr   slog.Attr
		redact bool
	}{
		{"api key by name", slog.String("api_key", "gsk_1234567890abcdef"), true},
		{"groq key by value", slog.String("detail", "auth failed for gsk_1234567890abcdef"), true},
		{"gemini key by value", slog.String("detail", "using AIzaSyB1234567890abc"), true},
		{"source text by name", slog.String("source_text", "줄거리 전체"), true},
		{"translation by name", slog.String("translation", "the whole line"), true},
		{"prompt by name", slog.String("prompt", "You are a translator"), true},
		{"context by name", slog.String("context", "previous dialogue"), true},
		{"bare token by name", slog.String("token", "abc123"), true},
		{"access token by name", slog.String("access_token", "abc123"), true},
		{"index is fine", slog.Int("index", 42), false},
		{"language is fine", slog.String("lang", "de"), false},
		{"error is fine", slog.String("error", "rate limit exceeded"), false},
		{"input token count is fine", slog.Int("input_tokens", 1234), false},
		{"output token count is fine", slog.Int("output_tokens", 98), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactAttr(nil, tt.attr)
			redacted := got.Value.Kind() == slog.KindString && got.Value.String() == "[REDACTED]"
			if redacted != tt.redact {
				t.Errorf("RedactAttr(%v) redacted=%v, want %v", tt.attr, redacted, tt.redact)
			}
		})
	}
}

func TestMultiHandler_JSONFile(t *testing.T) {
	var console, file bytes.Buffer
	opts := &slog.HandlerOptions{Level: LevelInfo, ReplaceAttr: RedactAttr}
	h := &multiHandler{handlers: []slog.Handler{
		NewPrettyHandler(&console, opts, false),
		slog.NewJSONHandler(&file, opts),
	}}
	l := slog.New(h)

	l.Info("segment translated", "index", 5, "api_key", "gsk_1234567890abcdef")

	if !strings.Contains(console.String(), "segment translated") {
		t.Errorf("console output missing message: %q", console.String())
	}

	scanner := bufio.NewScanner(&file)
	if !scanner.Scan() {
		t.Fatal("no JSON line written")
	}
	var record map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
		t.Fatalf("file output is not JSON: %v", err)
	}
	if record["msg"] != "segment translated" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["api_key"] != "[REDACTED]" {
		t.Errorf("api_key leaked into the JSON log: %v", record["api_key"])
	}
	if record["index"] != float64(5) {
		t.Errorf("index = %v", record["index"])
	}
}
