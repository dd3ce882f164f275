package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"
)

// Attribute keys lifted out of Attributes into LogEntry fields.
const (
	moduleKey  = "module"
	sessionKey = "session_id"
)

// LogCallback is called when a new log entry is written.
// Used to publish log events without creating import cycles.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler that writes to a ring buffer
// and optionally calls a callback for each log entry. Top-level module and
// session_id attributes become the entry's Module and SessionID.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	attrs    []slog.Attr
	groups   []string
	callback LogCallback
}

// NewBufferHandler creates a handler that writes to the given ring buffer.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{
		buffer:   buffer,
		level:    level,
		callback: callback,
	}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}

	for _, a := range h.attrs {
		addEntryAttr(&entry, nil, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addEntryAttr(&entry, h.groups, a)
		return true
	})
	if len(entry.Attributes) == 0 {
		entry.Attributes = nil
	}

	h.buffer.Write(entry)

	if h.callback != nil {
		h.callback(entry)
	}

	return nil
}

// addEntryAttr lifts ungrouped module and session_id attributes into entry
// and flattens everything else into Attributes.
func addEntryAttr(entry *LogEntry, groups []string, a slog.Attr) {
	if len(groups) == 0 {
		switch a.Key {
		case moduleKey:
			entry.Module = a.Value.String()
			return
		case sessionKey:
			entry.SessionID = a.Value.String()
			return
		}
	}
	flattenAttr(entry.Attributes, groups, a)
}

// qualifyAttrs nests attrs under the open groups so they keep the
// qualification they had when added.
func qualifyAttrs(groups []string, attrs []slog.Attr) []slog.Attr {
	for i := len(groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: groups[i], Value: slog.GroupValue(attrs...)}}
	}
	return attrs
}

// flattenAttr extracts a slog.Attr into a flat map with dot-notation keys for groups.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clone(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, nested, ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), qualifyAttrs(h.groups, attrs)...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

// levelToString converts slog.Level to a lowercase string.
func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// FormatLogLine formats a LogEntry as a single display line. Entries
// logged for a session carry the first eight characters of its ID.
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	sb.WriteString(entry.Timestamp.Format(time.RFC3339Nano))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("] [")
	sb.WriteString(entry.Module)
	sb.WriteString("] ")
	if id := entry.SessionID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString("<")
		sb.WriteString(id)
		sb.WriteString("> ")
	}
	sb.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Attributes))
	for k := range entry.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attributes[k])
	}

	return sb.String()
}
