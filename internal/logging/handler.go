package logging

import (
	"context"
	"log/slog"
)

// levelSplitHandler fans every record out to main, and additionally to
// errorOnly when the record's level is at least slog.LevelError. This is
// what lets combined.log carry everything while error.log carries only
// failures, without running two independent loggers.
type levelSplitHandler struct {
	main      slog.Handler
	errorOnly slog.Handler
}

func (h *levelSplitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.main.Enabled(ctx, level) || h.errorOnly.Enabled(ctx, level)
}

func (h *levelSplitHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.main.Enabled(ctx, record.Level) {
		if err := h.main.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	if record.Level >= slog.LevelError && h.errorOnly.Enabled(ctx, record.Level) {
		if err := h.errorOnly.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *levelSplitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelSplitHandler{
		main:      h.main.WithAttrs(attrs),
		errorOnly: h.errorOnly.WithAttrs(attrs),
	}
}

func (h *levelSplitHandler) WithGroup(name string) slog.Handler {
	return &levelSplitHandler{
		main:      h.main.WithGroup(name),
		errorOnly: h.errorOnly.WithGroup(name),
	}
}

var _ slog.Handler = (*levelSplitHandler)(nil)
