package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newSplitHandlerForTest(mainBuf, errBuf *bytes.Buffer) *levelSplitHandler {
	return &levelSplitHandler{
		main:      slog.NewJSONHandler(mainBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		errorOnly: slog.NewJSONHandler(errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}
}

func TestLevelSplitHandlerWritesInfoToMainOnly(t *testing.T) {
	var mainBuf, errBuf bytes.Buffer
	logger := slog.New(newSplitHandlerForTest(&mainBuf, &errBuf))

	logger.Info("hello")

	if !strings.Contains(mainBuf.String(), "hello") {
		t.Error("expected info record in main output")
	}
	if errBuf.Len() != 0 {
		t.Error("expected error-only output to stay empty for an info record")
	}
}

func TestLevelSplitHandlerWritesErrorsToBoth(t *testing.T) {
	var mainBuf, errBuf bytes.Buffer
	logger := slog.New(newSplitHandlerForTest(&mainBuf, &errBuf))

	logger.Error("boom")

	if !strings.Contains(mainBuf.String(), "boom") {
		t.Error("expected error record in main output")
	}
	if !strings.Contains(errBuf.String(), "boom") {
		t.Error("expected error record in error-only output")
	}
}

func TestLevelSplitHandlerWithAttrsPropagatesToBothHandlers(t *testing.T) {
	var mainBuf, errBuf bytes.Buffer
	handler := newSplitHandlerForTest(&mainBuf, &errBuf)
	withAttrs := handler.WithAttrs([]slog.Attr{slog.String("component", "test")})

	logger := slog.New(withAttrs)
	logger.Error("boom")

	if !strings.Contains(mainBuf.String(), `"component":"test"`) {
		t.Errorf("expected component attr in main output, got %s", mainBuf.String())
	}
	if !strings.Contains(errBuf.String(), `"component":"test"`) {
		t.Errorf("expected component attr in error output, got %s", errBuf.String())
	}
}

func TestLevelSplitHandlerEnabledReflectsEitherSubHandler(t *testing.T) {
	var mainBuf, errBuf bytes.Buffer
	handler := newSplitHandlerForTest(&mainBuf, &errBuf)

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected Enabled(debug) to be true since main handler accepts debug")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected Enabled(error) to be true")
	}
}
