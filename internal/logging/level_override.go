package logging

import (
	"context"
	"log/slog"
)

// stageLevelHandler raises the minimum level for one stage's logger. The
// wrapped handler must already accept the most verbose level in use.
type stageLevelHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h stageLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h stageLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h stageLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stageLevelHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h stageLevelHandler) WithGroup(name string) slog.Handler {
	return stageLevelHandler{next: h.next.WithGroup(name), level: h.level}
}

// withMinLevel returns logger filtered to level and above. Nesting replaces
// the previous override instead of stacking.
func withMinLevel(logger *slog.Logger, level slog.Level) *slog.Logger {
	handler := logger.Handler()
	if existing, ok := handler.(stageLevelHandler); ok {
		handler = existing.next
	}
	return slog.New(stageLevelHandler{next: handler, level: level})
}
