package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "kvsnode"

// JournalHandler is a slog.Handler that sends logs to systemd journal.
// Attributes become journal fields, so `journalctl SESSION_ID=<id>` or
// `journalctl STREAM=<name>` select one stream's lines.
type JournalHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the log record to systemd journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	priority := mapLevelToPriority(r.Level)
	if err := journal.Send(r.Message, priority, h.fields(r)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to send to journal: %v\n", err)
		return err
	}
	return nil
}

// fields builds the journal fields for r. MESSAGE and PRIORITY are added by
// journal.Send.
func (h *JournalHandler) fields(r slog.Record) map[string]string {
	fields := map[string]string{"SYSLOG_IDENTIFIER": syslogIdentifier}

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			fields["CODE_FILE"] = frame.File
			fields["CODE_LINE"] = strconv.Itoa(frame.Line)
			fields["CODE_FUNC"] = frame.Function
		}
	}

	for _, attr := range h.attrs {
		addAttrToFields(fields, attr, nil)
	}
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.groups)
		return true
	})
	return fields
}

// WithAttrs returns a new handler with additional attributes.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{
		level:  h.level,
		attrs:  append(slices.Clone(h.attrs), qualifyAttrs(h.groups, attrs)...),
		groups: h.groups,
	}
}

// WithGroup returns a new handler with a group prefix.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: append(slices.Clone(h.groups), name),
	}
}

// mapLevelToPriority maps slog levels to journal priorities.
func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields adds an slog attribute to journal fields.
func addAttrToFields(fields map[string]string, attr slog.Attr, groups []string) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		nested := groups
		if attr.Key != "" {
			nested = append(slices.Clone(groups), attr.Key)
		}
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, a, nested)
		}
		return
	}

	key := journalKey(append(slices.Clone(groups), attr.Key))
	if key == "" {
		return
	}

	switch attr.Value.Kind() {
	case slog.KindString:
		fields[key] = attr.Value.String()
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(attr.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(attr.Value.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(attr.Value.Bool())
	case slog.KindDuration:
		fields[key] = attr.Value.Duration().String()
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format(time.RFC3339Nano)
	default:
		if err, ok := attr.Value.Any().(error); ok {
			fields[key] = err.Error()
		} else {
			fields[key] = attr.Value.String()
		}
	}
}

// journalKey joins parts into a valid journal field name: uppercase ASCII
// letters, digits and underscores, not starting with an underscore or digit.
func journalKey(parts []string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(strings.Join(parts, "_")) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	key := strings.TrimLeft(sb.String(), "_")
	if key != "" && key[0] >= '0' && key[0] <= '9' {
		key = "F_" + key
	}
	return key
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
