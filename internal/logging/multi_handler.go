package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
)

const redactedValue = "[REDACTED]"

// Attribute keys whose values are masked before reaching any handler.
var secretKeys = map[string]bool{
	"secret_key":        true,
	"secret_access_key": true,
	"session_token":     true,
	"token":             true,
	"password":          true,
}

// MultiHandler fans out log records to multiple handlers. Secret attributes
// are masked once here so stdout, the journal and the ring buffer never
// hold them.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to all provided handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(m.handlers, func(h slog.Handler) bool {
		return h.Enabled(ctx, level)
	})
}

// Handle passes a masked copy of r to every enabled handler. A failing
// handler does not stop the others; their errors are joined.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(redactAttr(a))
		return true
	})

	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, masked.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redactAttr(a)
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(masked) })
}

// WithGroup implements slog.Handler.
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) each(fn func(slog.Handler) slog.Handler) *MultiHandler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = fn(h)
	}
	return &MultiHandler{handlers: handlers}
}

// redactAttr masks secret attributes, descending into groups.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, ga := range group {
			masked[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	}
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redactedValue)
	}
	return a
}
