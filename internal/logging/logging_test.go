package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextPrefersRequestLogger(t *testing.T) {
	t.Parallel()

	var requestBuf, fallbackBuf bytes.Buffer
	requestLogger := slog.New(slog.NewTextHandler(&requestBuf, nil))
	fallback := slog.New(slog.NewTextHandler(&fallbackBuf, nil))

	ctx := WithLogger(context.Background(), requestLogger)
	FromContext(ctx, fallback).Info("hello")

	if !strings.Contains(requestBuf.String(), "hello") {
		t.Fatalf("expected request logger to receive record, got %q", requestBuf.String())
	}
	if fallbackBuf.Len() != 0 {
		t.Fatalf("fallback logger should be unused, got %q", fallbackBuf.String())
	}
}

func TestFromContextWithoutLoggers(t *testing.T) {
	t.Parallel()

	logger := FromContext(context.Background(), nil)
	if logger == nil {
		t.Fatalf("expected discard logger, got nil")
	}
	logger.Info("dropped")
}

func TestMultiHandlerFansOut(t *testing.T) {
	t.Parallel()

	var textBuf, jsonBuf bytes.Buffer
	handler := MultiHandler(
		slog.NewTextHandler(&textBuf, nil),
		nil,
		slog.NewJSONHandler(&jsonBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(handler).With("component", "test")

	logger.Info("info only")
	logger.Warn("warned", "order_id", "abc")

	if !strings.Contains(textBuf.String(), "info only") || !strings.Contains(textBuf.String(), "warned") {
		t.Fatalf("text handler missing records: %q", textBuf.String())
	}

	lines := strings.Split(strings.TrimSpace(jsonBuf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("json handler should only see the warning, got %d lines", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("invalid json record: %v", err)
	}
	if record["component"] != "test" || record["order_id"] != "abc" {
		t.Fatalf("unexpected record attributes: %v", record)
	}
}

func TestNewJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelInfo, Format: "json"})
	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %q", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected json output, got %q", out)
	}
}
