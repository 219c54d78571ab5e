package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-readable line per record:
//
//	2026-01-02T15:04:05Z INFO workflow [job/stage]: message key=value
//
// Component, job id and stage move from the attributes into the prefix.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	group     string // "a.b." for attributes added under WithGroup
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = slices.Clip(h.fields)
	for _, attr := range attrs {
		next.fields = appendField(next.fields, h.group, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := slices.Clip(h.fields)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.group, attr)
		return true
	})

	var component, jobID, stageName string
	rest := make([]field, 0, len(fields))
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			if component == "" {
				component = attrString(f.value)
			}
		case FieldJobID:
			jobID = attrString(f.value)
		case FieldStage:
			stageName = attrString(f.value)
		default:
			rest = append(rest, f)
		}
	}

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(when.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	buf.WriteByte(' ')
	writePrefix(&buf, component, jobID, stageName)

	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(msg)

	if h.addSource && record.PC != 0 {
		frame := record.Source()
		buf.WriteString(" [" + filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line) + "]")
	}
	for _, f := range rest {
		buf.WriteString(" " + f.key + "=" + formatValue(f.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// appendField flattens groups into dotted keys and drops empty attributes.
func appendField(dst []field, group string, attr slog.Attr) []field {
	value := attr.Value.Resolve()
	if attr.Key == "" && value.Kind() != slog.KindGroup {
		return dst
	}
	if value.Kind() != slog.KindGroup {
		return append(dst, field{key: group + attr.Key, value: value})
	}
	inner := group
	if attr.Key != "" {
		inner += attr.Key + "."
	}
	for _, member := range value.Group() {
		dst = appendField(dst, inner, member)
	}
	return dst
}

// writePrefix renders "component [job/stage]: ". Any part may be missing.
func writePrefix(buf *bytes.Buffer, component, jobID, stageName string) {
	if component == "" && jobID == "" && stageName == "" {
		return
	}
	buf.WriteString(component)
	if scope := strings.Trim(jobID+"/"+stageName, "/"); scope != "" {
		if component != "" {
			buf.WriteByte(' ')
		}
		buf.WriteString("[" + scope + "]")
	}
	buf.WriteString(": ")
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
